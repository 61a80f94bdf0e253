package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fluxcd/rollout/pkg/image"
)

func mustRef(t *testing.T, s string) image.Ref {
	ref, err := image.ParseRef(s)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func TestValidate(t *testing.T) {
	spec := Spec{
		Image:    mustRef(t, "fluxcd/helloworld:v1"),
		Replicas: 2,
		HealthCheck: Probe{
			Path:         "/healthz",
			InitialDelay: time.Second,
			Period:       time.Second,
		},
	}
	assert.NoError(t, spec.Validate())

	negative := spec
	negative.Replicas = -1
	err := negative.Validate()
	assert.Error(t, err)
	assert.True(t, IsValidation(err))

	blank := spec
	blank.Image = image.Ref{}
	err = blank.Validate()
	assert.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestContentDigest(t *testing.T) {
	spec := Spec{Image: mustRef(t, "fluxcd/helloworld:v1"), Replicas: 2}
	d1, err := spec.ContentDigest()
	assert.NoError(t, err)
	d2, err := spec.ContentDigest()
	assert.NoError(t, err)
	assert.Equal(t, d1, d2)

	other := spec
	other.Replicas = 3
	d3, err := other.ContentDigest()
	assert.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestRevisionOrdering(t *testing.T) {
	var zero Revision
	assert.True(t, zero.Zero())
	a := Revision{Counter: 1}
	b := Revision{Counter: 2}
	assert.True(t, b.After(a))
	assert.False(t, a.After(b))
	assert.True(t, a.After(zero))
	assert.Equal(t, "none", zero.String())
}
