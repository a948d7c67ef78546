package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Document is a unit of plain text handed to the knowledge store by the
// ingestion stage.
type Document struct {
	// Source identifies where the text came from (file path or URL).
	Source string `json:"source" yaml:"source"`

	Content string `json:"content" yaml:"content"`

	// Metadata holds loader-specific attributes such as title or file type.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SearchMode selects the retrieval strategy used by the knowledge store.
type SearchMode string

const (
	SearchNaive  SearchMode = "naive"
	SearchLocal  SearchMode = "local"
	SearchGlobal SearchMode = "global"
	SearchHybrid SearchMode = "hybrid"
)

// SearchModes lists the accepted modes in display order.
var SearchModes = []SearchMode{SearchNaive, SearchLocal, SearchGlobal, SearchHybrid}

// ParseSearchMode validates s and returns it as a SearchMode.
func ParseSearchMode(s string) (SearchMode, error) {
	mode := SearchMode(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range SearchModes {
		if m == mode {
			return mode, nil
		}
	}
	return "", fmt.Errorf("invalid search mode %q (want naive, local, global or hybrid)", s)
}

// SubTopic is one aspect of a topic together with the query used to search
// the knowledge store for it.
type SubTopic struct {
	SubTopic string `json:"sub_topic" yaml:"sub_topic"`
	Query    string `json:"query" yaml:"query"`
}

// Concern is a ranked theme the knowledge store emphasizes for a topic.
type Concern struct {
	Concern    string     `json:"concern" yaml:"concern"`
	Importance Importance `json:"importance" yaml:"importance"`
	Reasoning  string     `json:"reasoning" yaml:"reasoning"`
	Evidence   StringList `json:"evidence" yaml:"evidence"`
	LogicChain string     `json:"logic_chain" yaml:"logic_chain"`
}

// Importance is a 1-10 rank. Decoding accepts JSON numbers and numeric
// strings since model output is not consistent about either. Any other
// value decodes as 0 so one odd field never rejects the whole concern.
type Importance int

// UnmarshalJSON implements json.Unmarshaler.
func (i *Importance) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*i = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*i = 0
			return nil
		}
		*i = Importance(math.Round(f))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*i = 0
		return nil
	}
	*i = Importance(math.Round(f))
	return nil
}

// StringList decodes from either a JSON array of strings or a single string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*l = StringList{}
		} else {
			*l = StringList{s}
		}
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StringList, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case nil:
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	*l = out
	return nil
}

// MarshalJSON keeps an empty evidence list as [] rather than null.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}
