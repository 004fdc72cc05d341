package textgen

import (
	"errors"
	"math"
	"sync"
)

var (
	// ErrDoubleFree is returned by FreeString for a String that was already
	// freed, or a copy of one.
	ErrDoubleFree = errors.New("textgen: string already freed")
	// ErrForeignString is returned by FreeString for a String issued by a
	// different Library.
	ErrForeignString = errors.New("textgen: string belongs to another library")
	// ErrStringTooLong is returned when generated text does not fit the
	// 32-bit length of a boundary string.
	ErrStringTooLong = errors.New("textgen: string exceeds 32-bit length")
)

// String is generated text owned by the caller until it is handed back with
// FreeString. The bytes are never shared with corpus storage or with any
// other String, and must not be used after the String is freed.
type String struct {
	lib    *Library
	handle uint64
	buf    []byte
}

// Bytes returns the text. The slice is only valid until FreeString.
func (s *String) Bytes() []byte {
	return s.buf
}

// String returns a copy of the text.
func (s *String) String() string {
	return string(s.buf)
}

// Len returns the length of the text in bytes.
func (s *String) Len() uint32 {
	return uint32(len(s.buf))
}

// Freed reports whether s has been consumed by FreeString.
func (s *String) Freed() bool {
	return s.handle == 0
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 64)
		return &b
	},
}

func getBuf() []byte {
	return (*bufPool.Get().(*[]byte))[:0]
}

func putBuf(b []byte) {
	// Large buffers are left to the garbage collector.
	if cap(b) > 64<<10 {
		return
	}
	b = b[:0]
	bufPool.Put(&b)
}

// newString registers buf as a live String. It takes ownership of buf.
func (l *Library) newString(buf []byte) (*String, error) {
	if uint64(len(buf)) > math.MaxUint32 {
		putBuf(buf)
		return nil, ErrStringTooLong
	}

	l.strMu.Lock()
	defer l.strMu.Unlock()
	if l.live == nil {
		putBuf(buf)
		return nil, ErrNotInitialized
	}
	l.nextHandle++
	h := l.nextHandle
	l.live[h] = struct{}{}
	return &String{lib: l, handle: h, buf: buf}, nil
}

// FreeString hands s back to the Library. s is consumed: it reads as empty
// afterwards and a second FreeString on it, or on any copy of it, returns
// ErrDoubleFree.
func (l *Library) FreeString(s *String) error {
	if err := l.ready(); err != nil {
		return err
	}
	if s == nil || s.handle == 0 {
		return ErrDoubleFree
	}
	if s.lib != l {
		return ErrForeignString
	}

	l.strMu.Lock()
	if l.live == nil {
		l.strMu.Unlock()
		return ErrNotInitialized
	}
	if _, ok := l.live[s.handle]; !ok {
		l.strMu.Unlock()
		return ErrDoubleFree
	}
	delete(l.live, s.handle)
	l.strMu.Unlock()

	buf := s.buf
	*s = String{}
	putBuf(buf)
	return nil
}

// Outstanding returns the number of strings handed out and not yet freed.
func (l *Library) Outstanding() int {
	l.strMu.Lock()
	defer l.strMu.Unlock()
	return len(l.live)
}
