package corpus

import (
	"embed"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Names of the bundled data files. A data directory may provide files with
// the same names to replace them.
const (
	FileWordsAlpha    = "words_alpha.txt"
	FileWordsNonAlpha = "words_nonalpha.txt"
	FileSentences     = "sentences.txt"
)

//go:embed data/*.txt
var bundled embed.FS

// Open returns the named data file, preferring dir when it holds a copy and
// falling back to the bundled one.
func Open(dir, name string) (io.ReadCloser, error) {
	if dir != "" {
		file, err := os.Open(filepath.Join(dir, name))
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return bundled.Open("data/" + name)
}

// LoadWordList reads the named word list, see Open.
func LoadWordList(dir, name string) (*WordList, error) {
	rc, err := Open(dir, name)
	if err != nil {
		return nil, err
	}
	defer func(rc io.ReadCloser) {
		_ = rc.Close()
	}(rc)
	return ReadWordList(rc)
}
