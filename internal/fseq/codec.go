package fseq

import (
	"log/slog"

	"fseqgen/internal/codec"
)

// Codec opens and creates FSEQ files for the export pipeline.
type Codec struct {
	Logger *slog.Logger
	// Producer, when set, is written as the "sp" variable header of every
	// created file.
	Producer string
}

var _ codec.Codec = Codec{}

func (c Codec) OpenForRead(path string) (codec.Reader, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c Codec) CreateForWrite(path string, major int, compression codec.Compression, level int) (codec.Writer, error) {
	w, err := Create(path, major, compression, level, c.Logger)
	if err != nil {
		return nil, err
	}
	w.SetProducer(c.Producer)
	return w, nil
}
