package xclassify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Predicate 分类谓词。msg 与 kind 均已转为小写。
type Predicate func(err error, msg, kind string) bool

// Rule 分类规则：谓词命中即归入 Category。
type Rule struct {
	Category  Category
	Predicate Predicate
}

// MatchPattern 构造按正则匹配错误消息的谓词。
// 模式以不区分大小写方式编译，编译失败会 panic，只应在初始化阶段调用。
func MatchPattern(patterns ...string) Predicate {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile("(?i)"+p))
	}
	return func(_ error, msg, _ string) bool {
		for _, re := range res {
			if re.MatchString(msg) {
				return true
			}
		}
		return false
	}
}

// MatchKind 构造按错误种类精确匹配（不区分大小写）的谓词。
func MatchKind(kinds ...string) Predicate {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[strings.ToLower(k)] = struct{}{}
	}
	return func(_ error, _, kind string) bool {
		_, ok := set[kind]
		return ok
	}
}

// MatchError 构造按 errors.Is 匹配的谓词。
func MatchError(targets ...error) Predicate {
	return func(err error, _, _ string) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// Any 组合谓词，任一命中即命中。
func Any(preds ...Predicate) Predicate {
	return func(err error, msg, kind string) bool {
		for _, p := range preds {
			if p != nil && p(err, msg, kind) {
				return true
			}
		}
		return false
	}
}

// isNetOp 识别标准库网络层错误
func isNetOp(err error, _, _ string) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

// isNetTimeout 识别 net.Error 上报的超时
func isNetTimeout(err error, _, _ string) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// DefaultRules 返回默认的有序规则表，每次调用返回新切片。
func DefaultRules() []Rule {
	return []Rule{
		{Throttling, Any(
			MatchPattern(`throttl`, `rate.?limit`, `too.?many.?requests`, `quota.?exceeded`),
			MatchKind("ThrottlingException", "TooManyRequestsException"),
		)},
		{Network, Any(
			MatchPattern(`network`, `connection`, `timeout`, `dns`, `socket`, `unreachable`),
			MatchKind("NetworkError", "NetworkingError"),
			isNetOp,
		)},
		{Timeout, Any(
			MatchError(context.DeadlineExceeded),
			isNetTimeout,
			MatchPattern(`timed.?out`, `deadline.?exceeded`),
			MatchKind("TimeoutError"),
		)},
		{Quota, Any(
			MatchPattern(`quota`, `limit.?exceeded`),
			MatchKind("ServiceQuotaExceededException"),
		)},
		{Credential, Any(
			MatchPattern(`credential`, `unauthori[sz]ed`, `access.?denied`, `expired.?token`, `forbidden`, `authenticat`),
			MatchKind("CredentialsError", "ExpiredTokenException", "UnrecognizedClientException"),
		)},
	}
}

// Classifier 有序规则分类器，并发安全（构造后只读）。
type Classifier struct {
	rules []Rule
}

// Option 分类器配置选项
type Option func(*Classifier)

// WithRules 替换整张规则表
func WithRules(rules ...Rule) Option {
	return func(c *Classifier) {
		c.rules = append([]Rule(nil), rules...)
	}
}

// WithExtraRules 在默认规则之前插入规则，用于业务特定错误码的优先识别。
func WithExtraRules(rules ...Rule) Option {
	return func(c *Classifier) {
		c.rules = append(append([]Rule(nil), rules...), c.rules...)
	}
}

// New 创建分类器，默认使用 DefaultRules。
func New(opts ...Option) *Classifier {
	c := &Classifier{rules: DefaultRules()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify 返回 err 的类别。
//
// 错误链上已有 ClassifiedError 时直接采用其类别。
// 谓词或 err.Error() 发生 panic 时返回 Generic。
func (c *Classifier) Classify(err error) (cat Category) {
	if err == nil {
		return Generic
	}
	defer func() {
		if r := recover(); r != nil {
			cat = Generic
		}
	}()
	if known, ok := CategoryOf(err); ok {
		return known
	}
	msg := strings.ToLower(err.Error())
	kind := strings.ToLower(KindOf(err))
	rules := defaultRules
	if c != nil {
		rules = c.rules
	}
	for _, r := range rules {
		if r.Predicate != nil && r.Predicate(err, msg, kind) {
			return r.Category
		}
	}
	return Generic
}

var (
	defaultRules      = DefaultRules()
	defaultClassifier = New()
)

// Classify 使用默认规则分类
func Classify(err error) Category {
	return defaultClassifier.Classify(err)
}

// KindOf 返回错误种类：错误链上第一个 Kinder 的 Kind()，否则为动态类型名（不含包路径）。
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var k Kinder
	if errors.As(err, &k) {
		if kind := k.Kind(); kind != "" {
			return kind
		}
	}
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimPrefix(name, "*")
}
