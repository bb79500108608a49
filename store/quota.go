package store

import (
	"errors"
	"io/fs"
	"log/slog"
)

// QuotaState is the persisted daily request counter.
type QuotaState struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// QuotaFile persists QuotaState. It does no locking; the quota package
// serializes access.
type QuotaFile struct {
	Path string
}

// Load reads the counter. A missing or malformed file yields {today, 0}.
func (f QuotaFile) Load(today string) QuotaState {
	var st QuotaState
	if err := readJSON(f.Path, &st); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("quota file unreadable, starting fresh", slog.String("path", f.Path), slog.Any("err", err))
		}
		return QuotaState{Date: today}
	}
	if st.Date == "" {
		st.Date = today
	}
	return st
}

// Save rewrites the counter file.
func (f QuotaFile) Save(st QuotaState) error {
	return writeJSON(f.Path, st)
}
