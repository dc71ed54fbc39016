package format

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestHeaderRoundTrip(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	in := Header{
		Flags:      FlagFinished,
		ID:         id,
		StartNanos: 1234567890123456789,
		Duration:   42_000_000_000,
		DataOffset: HeaderSize,
		DataSize:   9000,
	}
	buf := in.Encode()
	out, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Errorf("round trip: want %+v, got %+v", in, out)
	}
	if !out.Finished() {
		t.Error("expected Finished")
	}
}

func TestHeaderUnfinished(t *testing.T) {
	buf := Header{StartNanos: 1000}.Encode()
	h, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Finished() {
		t.Error("unexpected Finished flag")
	}
	if h.Duration != 0 || h.DataSize != 0 {
		t.Errorf("expected zero duration/size, got %+v", h)
	}
}

func TestHeaderDecodeErrors(t *testing.T) {
	good := Header{StartNanos: 1}.Encode()

	tests := []struct {
		name    string
		mutate  func(buf []byte)
		trunc   int
		wantErr error
	}{
		{name: "too small", trunc: HeaderSize - 1, wantErr: ErrHeaderTooSmall},
		{name: "bad signature", mutate: func(b []byte) { b[0] = 'x' }, wantErr: ErrSignatureMismatch},
		{name: "bad type", mutate: func(b []byte) { b[1] = '?' }, wantErr: ErrTypeMismatch},
		{name: "bad version", mutate: func(b []byte) { b[2] = 0xff }, wantErr: ErrVersionMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, HeaderSize)
			copy(buf, good[:])
			if tc.mutate != nil {
				tc.mutate(buf)
			}
			if tc.trunc > 0 {
				buf = buf[:tc.trunc]
			}
			if _, err := Decode(buf); !errors.Is(err, tc.wantErr) {
				t.Errorf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}
