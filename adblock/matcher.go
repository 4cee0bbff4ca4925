package adblock

import (
	"strings"

	radix "github.com/hashicorp/go-immutable-radix"
)

// HostMatcher 域名后缀匹配器 (用于 ||example.com^ 类型的规则)
// 使用不可变 Radix Tree 实现：构建完成后只读，并发读取无需加锁
type HostMatcher struct {
	tree *radix.Tree
}

// hostMatcherBuilder 在构建阶段收集规则，Commit 后得到只读的 HostMatcher
type hostMatcherBuilder struct {
	txn *radix.Txn
}

func newHostMatcherBuilder() *hostMatcherBuilder {
	return &hostMatcherBuilder{txn: radix.New().Txn()}
}

// add 添加一条后缀规则，同一域名可以挂多条规则（选项不同）
func (b *hostMatcherBuilder) add(host string, rule *networkRule) {
	key := []byte(reverseHost(host))
	var list []*networkRule
	if v, ok := b.txn.Get(key); ok {
		list = v.([]*networkRule)
	}
	b.txn.Insert(key, append(list, rule))
}

func (b *hostMatcherBuilder) commit() *HostMatcher {
	return &HostMatcher{tree: b.txn.Commit()}
}

// Walk calls fn for every rule whose domain equals host or is a parent of it.
// Iteration stops when fn returns true.
// 逻辑：规则 example.com 同时覆盖 example.com 与 sub.example.com
func (m *HostMatcher) Walk(host string, fn func(rule *networkRule) bool) {
	if m == nil || m.tree.Len() == 0 {
		return
	}
	m.tree.Root().WalkPath([]byte(reverseHost(host)), func(_ []byte, v interface{}) bool {
		for _, r := range v.([]*networkRule) {
			if fn(r) {
				return true
			}
		}
		return false
	})
}

// Count 返回已索引的域名数量
func (m *HostMatcher) Count() int {
	if m == nil {
		return 0
	}
	return m.tree.Len()
}

// reverseHost 颠倒域名并追加分隔点 (e.g., "sub.example.com" -> "com.example.sub.")
// 末尾的点保证只在标签边界上匹配，"com.example." 不会命中 "com.examplefoo."
func reverseHost(host string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSuffix(host, ".")), ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".") + "."
}
