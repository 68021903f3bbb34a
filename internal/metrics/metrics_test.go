package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLookup(t *testing.T) {
	before := testutil.ToFloat64(LookupsTotal.WithLabelValues("Exito", "match"))

	ObserveLookup("Exito", "match", 250*time.Millisecond)
	ObserveLookup("Exito", "match", time.Second)

	after := testutil.ToFloat64(LookupsTotal.WithLabelValues("Exito", "match"))
	assert.Equal(t, before+2, after)
}
