package xescalate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
)

// MaxDelay 单次重投的最大延迟（与 SQS DelaySeconds 上限一致）。
const MaxDelay = 900 * time.Second

// Attempt 一次失败事件的恢复记录。
//
// RetryCount 从 0 开始，只由 Manager 在重投时递增。
type Attempt struct {
	ID                string             `json:"id"`
	RecoveryType      string             `json:"recoveryType"`
	OriginalOperation string             `json:"originalOperation"`
	Context           map[string]string  `json:"context,omitempty"`
	RetryCount        int                `json:"retryCount"`
	StartedAt         time.Time          `json:"startedAt,omitzero"`
	LastAttempt       time.Time          `json:"lastAttempt"`
	Category          xclassify.Category `json:"category"`
	Error             string             `json:"error,omitempty"`
}

// Message 恢复队列中的消息：当前尝试 + 此前各跳的历史。
type Message struct {
	Attempt

	// Model 原始模型调用，重投后 model-fallback 需要
	Model *xrecovery.ModelRequest `json:"model,omitempty"`

	History []Attempt `json:"history,omitempty"`
}

// DeadLetter 死信：消息加上进入死信的时间。
type DeadLetter struct {
	Message
	DeadLetteredAt time.Time `json:"deadLetteredAt"`
	Reason         string    `json:"reason,omitempty"`
}

// Validate 校验必填字段。
func (m *Message) Validate() error {
	switch {
	case m == nil:
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	case m.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	case m.OriginalOperation == "":
		return fmt.Errorf("%w: missing originalOperation", ErrInvalidMessage)
	case m.RetryCount < 0:
		return fmt.Errorf("%w: negative retryCount %d", ErrInvalidMessage, m.RetryCount)
	}
	return nil
}

// Clone 深拷贝，重投时不共享 Context / History。
func (m *Message) Clone() *Message {
	out := *m
	if m.Context != nil {
		out.Context = make(map[string]string, len(m.Context))
		for k, v := range m.Context {
			out.Context[k] = v
		}
	}
	if m.Model != nil {
		model := *m.Model
		out.Model = &model
	}
	out.History = append([]Attempt(nil), m.History...)
	return &out
}

// Encode 编码为 JSON。
func Encode(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode 解码并校验消息。
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeDeadLetter 编码死信。
func EncodeDeadLetter(d *DeadLetter) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil dead letter", ErrInvalidMessage)
	}
	if err := d.Message.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// DecodeDeadLetter 解码死信。
func DecodeDeadLetter(data []byte) (*DeadLetter, error) {
	var d DeadLetter
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := d.Message.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
