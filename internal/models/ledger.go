package models

// Ledger 去重/进度台账（持久化为单个 JSON 文档）
// processed_keys 按插入顺序保存；last_ts / last_row 只增不减
type Ledger struct {
	ProcessedKeys []string `json:"processed_keys"`
	LastTS        string   `json:"last_ts"`
	LastRow       int      `json:"last_row"`

	index map[string]struct{}
}

// NewLedger 创建空台账
func NewLedger() *Ledger {
	return &Ledger{
		ProcessedKeys: []string{},
		index:         make(map[string]struct{}),
	}
}

// 反序列化只填充 ProcessedKeys，索引在首次访问时按键列表重建
func (l *Ledger) ensureIndex() {
	if l.index != nil && len(l.index) == len(l.ProcessedKeys) {
		return
	}
	l.index = make(map[string]struct{}, len(l.ProcessedKeys))
	for _, k := range l.ProcessedKeys {
		l.index[k] = struct{}{}
	}
}

// Has 判断事件键是否已处理过
func (l *Ledger) Has(key string) bool {
	l.ensureIndex()
	_, ok := l.index[key]
	return ok
}

// Add 记录已处理的事件键（重复添加是无操作）
func (l *Ledger) Add(key string) {
	l.ensureIndex()
	if _, ok := l.index[key]; ok {
		return
	}
	l.index[key] = struct{}{}
	l.ProcessedKeys = append(l.ProcessedKeys, key)
}

// Len 已记录的事件键数量
func (l *Ledger) Len() int {
	return len(l.ProcessedKeys)
}

// AdvanceTS 推进时间水位线
// ISO-8601 固定格式下字典序比较即时间序比较
func (l *Ledger) AdvanceTS(ts string) {
	if ts != "" && ts > l.LastTS {
		l.LastTS = ts
	}
}

// AdvanceRow 推进行号水位线
func (l *Ledger) AdvanceRow(row int) {
	if row > l.LastRow {
		l.LastRow = row
	}
}

// Trim 截断到最近 bound 条，丢弃最早插入的键
func (l *Ledger) Trim(bound int) {
	if bound <= 0 || len(l.ProcessedKeys) <= bound {
		return
	}
	dropped := l.ProcessedKeys[:len(l.ProcessedKeys)-bound]
	l.ProcessedKeys = append([]string{}, l.ProcessedKeys[len(l.ProcessedKeys)-bound:]...)
	l.ensureIndex()
	for _, k := range dropped {
		delete(l.index, k)
	}
}
