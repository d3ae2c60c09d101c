package source

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bddconv/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func collect(t *testing.T, s *Source) ([]types.RawImageRecord, error) {
	t.Helper()
	var out []types.RawImageRecord
	for rec, err := range s.Records() {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func names(t *testing.T, recs []types.RawImageRecord) []string {
	t.Helper()
	var out []string
	for _, r := range recs {
		var v struct{ Name string }
		require.NoError(t, json.Unmarshal(r, &v))
		out = append(out, v.Name)
	}
	return out
}

func TestTopLevelArray(t *testing.T) {
	p := writeFile(t, "labels.json", `[{"name":"a.jpg","labels":[]},{"name":"b.jpg"}]`)
	recs, err := collect(t, New(p))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names(t, recs))
}

func TestImagesObject(t *testing.T) {
	p := writeFile(t, "labels.json", `{"info":{"x":[1,2]},"images":[{"name":"a.jpg"},{"name":"c.jpg"}],"tail":true}`)
	recs, err := collect(t, New(p))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, names(t, recs))
}

func TestObjectWithoutImages(t *testing.T) {
	p := writeFile(t, "labels.json", `{"info":{}}`)
	recs, err := collect(t, New(p))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestJSONLines(t *testing.T) {
	p := writeFile(t, "labels.jsonl", "{\"name\":\"a.jpg\"}\n\n{\"name\":\"b.jpg\"}\n")
	recs, err := collect(t, New(p))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names(t, recs))
}

func TestRestartable(t *testing.T) {
	p := writeFile(t, "labels.json", `[{"name":"a.jpg"},{"name":"b.jpg"},{"name":"c.jpg"}]`)
	s := New(p)

	// stop the first pass early
	for range s.Records() {
		break
	}
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMalformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":     `[{"name":"a.jpg"},`,
		"scalar top level": `42`,
		"string top level": `"images"`,
		"images not array": `{"images":{"name":"a.jpg"}}`,
		"empty file":       ``,
		"trailing garbage": `[{"name":"a.jpg"}] {"oops": 1} garbage`,
		"two documents":    `{"images":[{"name":"a.jpg"}]}{"images":[{"name":"b.jpg"}]}`,
		"trailing word":    `[{"name":"a.jpg"}] garbage`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, "labels.json", content)
			_, err := collect(t, New(p))
			var mie *MalformedInputError
			require.True(t, errors.As(err, &mie), "got %v", err)
			assert.Equal(t, p, mie.Path)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := collect(t, New(filepath.Join(t.TempDir(), "nope.json")))
	var mie *MalformedInputError
	require.True(t, errors.As(err, &mie))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
