package config

import (
	"fmt"
	"strings"
)

type HistorySource uint8

const (
	HistoryFiltered = HistorySource(1)
	HistoryRaw      = HistorySource(2)
)

const AllHistorySources = "filtered,raw"

func (this *HistorySource) Set(plain string) error {
	switch strings.TrimSpace(strings.ToLower(plain)) {
	case "filtered":
		*this = HistoryFiltered
		return nil
	case "raw":
		*this = HistoryRaw
		return nil
	default:
		return fmt.Errorf("illegal-history-source: %s", plain)
	}
}

func (this HistorySource) String() string {
	switch this {
	case 0:
		return ""
	case HistoryFiltered:
		return "filtered"
	case HistoryRaw:
		return "raw"
	default:
		return fmt.Sprintf("illegal-history-source-%d", this)
	}
}

func (this HistorySource) MarshalText() ([]byte, error) {
	return []byte(this.String()), nil
}

func (this *HistorySource) UnmarshalText(text []byte) error {
	return this.Set(string(text))
}

type SourceKind uint8

const (
	SourceTone = SourceKind(1)
	SourceWAV  = SourceKind(2)
)

const AllSourceKinds = "tone,wav"

func (this *SourceKind) Set(plain string) error {
	switch strings.TrimSpace(strings.ToLower(plain)) {
	case "tone", "sine":
		*this = SourceTone
		return nil
	case "wav", "file":
		*this = SourceWAV
		return nil
	default:
		return fmt.Errorf("illegal-source-kind: %s", plain)
	}
}

func (this SourceKind) String() string {
	switch this {
	case 0:
		return ""
	case SourceTone:
		return "tone"
	case SourceWAV:
		return "wav"
	default:
		return fmt.Sprintf("illegal-source-kind-%d", this)
	}
}

func (this SourceKind) MarshalText() ([]byte, error) {
	return []byte(this.String()), nil
}

func (this *SourceKind) UnmarshalText(text []byte) error {
	return this.Set(string(text))
}
