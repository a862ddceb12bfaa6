// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("super secret key material")
	buffer, err := NewFromBytes(bytes.Clone(source))
	if err != nil {
		t.Fatal(err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), source) {
		t.Errorf("buffer contents = %q, want %q", buffer.Bytes(), source)
	}

	zeroed := bytes.Clone(source)
	other, err := NewFromBytes(zeroed)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	for index, value := range zeroed {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed: %#x", index, value)
		}
	}
}

func TestEqual(t *testing.T) {
	a, err := NewFromBytes([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewFromBytes([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	c, err := NewFromBytes([]byte{4, 3, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if !a.Equal(b) {
		t.Error("buffers with identical contents should be equal")
	}
	if a.Equal(c) {
		t.Error("buffers with different contents should not be equal")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	buffer, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadAfterClosePanics(t *testing.T) {
	buffer, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Error("Bytes on a closed buffer should panic")
		}
	}()
	buffer.Bytes()
}

func TestEmptySourceRejected(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) should fail")
	}
	if _, err := New(0); err == nil {
		t.Error("New(0) should fail")
	}
}
