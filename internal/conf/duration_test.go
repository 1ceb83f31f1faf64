package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_JSONRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))

	var back Duration
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, d, back)
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    Duration
		wantErr bool
	}{
		{name: "string", input: `"30s"`, want: Duration(30 * time.Second)},
		{name: "nanoseconds", input: `1000000000`, want: Duration(time.Second)},
		{name: "null resets", input: `null`, want: 0},
		{name: "bad string", input: `"thirty seconds"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tc.input), &d)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte("5m"), &d))
	assert.Equal(t, Duration(5*time.Minute), d)

	// Bare integers are nanoseconds.
	require.NoError(t, yaml.Unmarshal([]byte("1000000000"), &d))
	assert.Equal(t, Duration(time.Second), d)

	assert.Error(t, yaml.Unmarshal([]byte("not-a-duration"), &d))

	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))
}

func TestDurationDecodeHook(t *testing.T) {
	type target struct {
		Timeout Duration `mapstructure:"timeout"`
	}

	decode := func(t *testing.T, input map[string]any) target {
		t.Helper()
		var out target
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: DurationDecodeHook(),
			Result:     &out,
		})
		require.NoError(t, err)
		require.NoError(t, dec.Decode(input))
		return out
	}

	assert.Equal(t, Duration(30*time.Second),
		decode(t, map[string]any{"timeout": "30s"}).Timeout)
	assert.Equal(t, Duration(time.Second),
		decode(t, map[string]any{"timeout": int64(1000000000)}).Timeout)
}
