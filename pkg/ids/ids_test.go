package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectIDScheme(t *testing.T) {
	s := ObjectIDScheme{}
	id := s.New()

	assert.Len(t, id, 24)
	assert.True(t, s.Valid(id))
	assert.True(t, s.Valid("507f1f77bcf86cd799439011"))
	assert.False(t, s.Valid("507f1f77bcf86cd79943901"))   // 23 chars
	assert.False(t, s.Valid("507f1f77bcf86cd79943901z"))  // non-hex
	assert.False(t, s.Valid("507f1f77bcf86cd7994390111")) // 25 chars
	assert.False(t, s.Valid(""))
	assert.Equal(t, KindDocument, s.Kind())
}

func TestUUIDScheme(t *testing.T) {
	s := UUIDScheme{}
	id := s.New()

	assert.Len(t, id, 36)
	assert.True(t, s.Valid(id))
	assert.True(t, s.Valid(strings.ToUpper(id)))
	assert.False(t, s.Valid("urn:uuid:"+id))
	assert.False(t, s.Valid("{"+id+"}"))
	assert.False(t, s.Valid(strings.ReplaceAll(id, "-", "")))
	// version 1
	assert.False(t, s.Valid("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	// version 4 with a non RFC 4122 variant
	assert.False(t, s.Valid("f47ac10b-58cc-4372-c567-0e02b2c3d479"))
	assert.True(t, s.Valid("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.Equal(t, KindRelational, s.Kind())
}

func TestUniqueness(t *testing.T) {
	for _, s := range []Scheme{ObjectIDScheme{}, UUIDScheme{}} {
		seen := make(map[string]struct{}, 1000)
		for i := 0; i < 1000; i++ {
			id := s.New()
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %s", id)
			seen[id] = struct{}{}
		}
	}
}

func TestValidForBackendRejectsCrossShapes(t *testing.T) {
	oid := ObjectIDScheme{}.New()
	uid := UUIDScheme{}.New()

	assert.True(t, ValidForBackend(oid, KindDocument))
	assert.False(t, ValidForBackend(oid, KindRelational))
	assert.True(t, ValidForBackend(uid, KindRelational))
	assert.False(t, ValidForBackend(uid, KindDocument))
	assert.False(t, ValidForBackend(uid, Kind("sqlite")))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("MongoDB")
	require.NoError(t, err)
	assert.Equal(t, KindDocument, k)

	k, err = ParseKind(" postgresql ")
	require.NoError(t, err)
	assert.Equal(t, KindRelational, k)

	_, err = ParseKind("redis")
	assert.Error(t, err)
}

func TestCanonical(t *testing.T) {
	for _, s := range []Scheme{ObjectIDScheme{}, UUIDScheme{}} {
		id := s.New()
		upper := strings.ToUpper(id)

		require.True(t, s.Valid(upper))
		assert.Equal(t, id, s.Canonical(upper))
		assert.Equal(t, id, s.Canonical(id))
		assert.Equal(t, id, Canonical(upper))
	}
}
