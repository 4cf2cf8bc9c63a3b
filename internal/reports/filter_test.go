package reports

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fichaflow/fichaflow/internal/attendance"
	"github.com/fichaflow/fichaflow/internal/shared"
)

func TestParseFilter(t *testing.T) {
	values := url.Values{}
	values.Set("date_from", "2026-03-01")
	values.Set("date_to", "2026-03-31")
	values.Set("ficha_id", "7")
	values.Set("status", "absent")

	filter, err := ParseFilter(values)
	require.NoError(t, err)
	require.Equal(t, "2026-03-01", filter.From.Format("2006-01-02"))
	require.Equal(t, "2026-03-31", filter.To.Format("2006-01-02"))
	require.Equal(t, int64(7), *filter.FichaID)
	require.Equal(t, attendance.StatusAbsent, *filter.Status)
	require.False(t, filter.IsZero())
}

func TestParseFilterEmptyIsZero(t *testing.T) {
	filter, err := ParseFilter(url.Values{})
	require.NoError(t, err)
	require.True(t, filter.IsZero())
}

func TestParseFilterRejectsBadInput(t *testing.T) {
	cases := map[string]url.Values{
		"bad date":       {"date_from": {"03/01/2026"}},
		"bad ficha":      {"ficha_id": {"abc"}},
		"negative ficha": {"ficha_id": {"-1"}},
		"bad status":     {"status": {"presente"}},
		"inverted range": {"date_from": {"2026-03-31"}, "date_to": {"2026-03-01"}},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFilter(values)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}
