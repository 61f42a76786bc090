package xclassify

import (
	"errors"
	"fmt"
	"strings"
)

// Category 错误类别
type Category int

const (
	// Generic 未匹配任何规则的错误
	Generic Category = iota
	// Throttling 限流
	Throttling
	// Network 网络故障
	Network
	// Timeout 超时
	Timeout
	// Quota 配额耗尽
	Quota
	// Credential 凭证失效
	Credential
)

var categoryNames = [...]string{
	Generic:    "GENERIC",
	Throttling: "THROTTLING",
	Network:    "NETWORK",
	Timeout:    "TIMEOUT",
	Quota:      "QUOTA",
	Credential: "CREDENTIAL",
}

// Categories 返回全部类别，顺序固定。
func Categories() []Category {
	return []Category{Throttling, Network, Timeout, Quota, Credential, Generic}
}

// String 返回类别的大写名称
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid 检查类别是否为已定义的值
func (c Category) Valid() bool {
	return c >= 0 && int(c) < len(categoryNames)
}

// MarshalText 实现 encoding.TextMarshaler，配置与消息中以名称出现。
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (c *Category) UnmarshalText(data []byte) error {
	parsed, err := ParseCategory(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory 解析类别名称，大小写不敏感。
func ParseCategory(s string) (Category, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return Generic, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Sentinel 返回类别对应的哨兵错误，用于 errors.Is 判断。
func (c Category) Sentinel() error {
	switch c {
	case Throttling:
		return ErrThrottling
	case Network:
		return ErrNetwork
	case Timeout:
		return ErrTimeout
	case Quota:
		return ErrQuota
	case Credential:
		return ErrCredential
	default:
		return ErrGeneric
	}
}

// 类别哨兵错误。本包从不直接返回它们，只作为 ClassifiedError 的匹配目标。
var (
	ErrThrottling = errors.New("xclassify: throttling")
	ErrNetwork    = errors.New("xclassify: network")
	ErrTimeout    = errors.New("xclassify: timeout")
	ErrQuota      = errors.New("xclassify: quota exceeded")
	ErrCredential = errors.New("xclassify: credential")
	ErrGeneric    = errors.New("xclassify: generic")

	// ErrUnknownCategory 类别名称无法识别
	ErrUnknownCategory = errors.New("xclassify: unknown category")
)
