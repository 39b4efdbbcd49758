package gormx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawJson_Scan(t *testing.T) {
	asserter := assert.New(t)

	var r RawJson
	asserter.NoError(r.Scan([]byte(`{"x":1}`)))
	asserter.Equal(`{"x":1}`, string(r))
	asserter.NoError(r.Scan(nil))
	asserter.Nil(r)
	asserter.Error(r.Scan(42))

	v, err := RawJson(`{"x":1}`).Value()
	if asserter.NoError(err) {
		asserter.Equal(`{"x":1}`, v)
	}
	empty, err := RawJson(nil).Value()
	asserter.NoError(err)
	asserter.Nil(empty)
}
