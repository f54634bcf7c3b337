package models

// Record is one decoded form submission: field name -> field value.
// Keys are unique; when a field repeats, the last occurrence wins.
type Record map[string]string

// Document is the whole append log: timestamp key -> Record.
// It is persisted as a single JSON object.
type Document map[string]Record

// Entry is a single (timestamp key, Record) pair of the append log.
type Entry struct {
	Key    string `json:"key"`
	Record Record `json:"record"`
}
