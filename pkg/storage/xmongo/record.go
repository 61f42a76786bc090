package xmongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// Record 归档集合中的文档。
type Record struct {
	ObjectID       bson.ObjectID `bson:"_id,omitempty"`
	MessageID      string        `bson:"message_id"`
	Operation      string        `bson:"operation"`
	RecoveryType   string        `bson:"recovery_type"`
	Category       string        `bson:"category"`
	RetryCount     int           `bson:"retry_count"`
	Reason         string        `bson:"reason,omitempty"`
	Error          string        `bson:"error,omitempty"`
	DeadLetteredAt time.Time     `bson:"dead_lettered_at"`

	// Payload 完整死信的 JSON 编码
	Payload []byte `bson:"payload"`
}

// NewRecord 由死信构造文档。
func NewRecord(dl *xescalate.DeadLetter) (*Record, error) {
	if dl == nil {
		return nil, ErrNilDeadLetter
	}
	payload, err := xescalate.EncodeDeadLetter(dl)
	if err != nil {
		return nil, err
	}
	return &Record{
		MessageID:      dl.ID,
		Operation:      dl.OriginalOperation,
		RecoveryType:   dl.RecoveryType,
		Category:       dl.Category.String(),
		RetryCount:     dl.RetryCount,
		Reason:         dl.Reason,
		Error:          dl.Error,
		DeadLetteredAt: dl.DeadLetteredAt.UTC(),
		Payload:        payload,
	}, nil
}

// DeadLetter 还原死信。
func (r *Record) DeadLetter() (*xescalate.DeadLetter, error) {
	dl, err := xescalate.DecodeDeadLetter(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("xmongo: decode record %s: %w", r.MessageID, err)
	}
	return dl, nil
}

// Filter 死信查询条件，零值字段不参与过滤。
type Filter struct {
	Operation string
	Category  string
	Since     time.Time
	Until     time.Time
}

func (f Filter) toBSON() bson.D {
	d := bson.D{}
	if f.Operation != "" {
		d = append(d, bson.E{Key: "operation", Value: f.Operation})
	}
	if f.Category != "" {
		d = append(d, bson.E{Key: "category", Value: f.Category})
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		rng := bson.D{}
		if !f.Since.IsZero() {
			rng = append(rng, bson.E{Key: "$gte", Value: f.Since.UTC()})
		}
		if !f.Until.IsZero() {
			rng = append(rng, bson.E{Key: "$lt", Value: f.Until.UTC()})
		}
		d = append(d, bson.E{Key: "dead_lettered_at", Value: rng})
	}
	return d
}
