package requirements

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `# The order of packages is significant, because pip processes them in the order
# of appearance. Changing the order has an impact on the overall integration
# process, which may cause wedges in the gate later.

pbr!=2.1.0,>=2.0.0 # Apache-2.0
eventlet>=0.18.2,!=0.18.3,!=0.20.1 # MIT
oslo.config>=5.2.0 # Apache-2.0
requests[security]>=2.14.2 # Apache-2.0
pyudev ; sys_platform=='linux' # LGPLv2.1+
ironic-lib>=4.1.0
`

// TestParseManifest verifies order preservation and field extraction.
func TestParseManifest(t *testing.T) {
	t.Parallel()

	file, parseErrors := Parse([]byte(sampleManifest), "requirements.txt")
	require.Empty(t, parseErrors)

	reqs := file.Requirements()
	require.Len(t, reqs, 6)

	// Order is verbatim.
	names := make([]string, 0, len(reqs))
	for _, req := range reqs {
		names = append(names, req.Name)
	}

	require.Equal(t,
		[]string{"pbr", "eventlet", "oslo.config", "requests", "pyudev", "ironic-lib"},
		names)

	// Multiple comma-separated specifiers keep declaration order.
	pbr := reqs[0]
	require.Equal(t, []Specifier{
		{Op: "!=", Version: "2.1.0"},
		{Op: ">=", Version: "2.0.0"},
	}, pbr.Specifiers)
	require.Equal(t, "Apache-2.0", pbr.License)
	require.Equal(t, 5, pbr.Line)

	// Extras.
	requests := reqs[3]
	require.Equal(t, []string{"security"}, requests.Extras)

	// Environment marker with a license comment after it.
	pyudev := reqs[4]
	require.Equal(t, "sys_platform=='linux'", pyudev.Marker)
	require.Equal(t, "LGPLv2.1+", pyudev.License)
	require.Empty(t, pyudev.Specifiers)

	// No trailing comment means no license tag.
	require.Empty(t, reqs[5].License)

	// Leading comment block and blank line survive as entries.
	require.Equal(t, EntryComment, file.Entries[0].Kind)
	require.Equal(t, EntryBlank, file.Entries[3].Kind)
}

// TestParseSpecifierOperators checks every supported operator, including the
// longest-match cases.
func TestParseSpecifierOperators(t *testing.T) {
	t.Parallel()

	file, parseErrors := Parse([]byte(
		"a==1.0\nb===1.0\nc!=1.0\nd~=1.4\ne>=1.0\nf<=1.0\ng>1.0\nh<1.0\ni==1.*\n",
	), "requirements.txt")
	require.Empty(t, parseErrors)

	reqs := file.Requirements()
	require.Len(t, reqs, 9)

	expected := []string{"==", "===", "!=", "~=", ">=", "<=", ">", "<", "=="}
	for i, req := range reqs {
		require.Len(t, req.Specifiers, 1)
		require.Equal(t, expected[i], req.Specifiers[0].Op, req.Name)
	}

	require.Equal(t, "1.*", reqs[8].Specifiers[0].Version)
}

// TestParseMalformedLines verifies that bad lines are reported individually
// with their line numbers and do not hide valid ones.
func TestParseMalformedLines(t *testing.T) {
	t.Parallel()

	data := "pbr>=2.0.0\n>=1.0\nfoo=>1.0\nbar[baz\nqux ;\n"

	file, parseErrors := Parse([]byte(data), "requirements.txt")
	require.Len(t, parseErrors, 4)

	require.Equal(t, 2, parseErrors[0].Line)
	require.Contains(t, parseErrors[0].Error(), "requirements.txt:2")

	require.Equal(t, 3, parseErrors[1].Line)
	require.Contains(t, parseErrors[1].Reason, "specifier")

	require.Equal(t, 4, parseErrors[2].Line)
	require.Contains(t, parseErrors[2].Reason, "extras")

	require.Equal(t, 5, parseErrors[3].Line)
	require.Contains(t, parseErrors[3].Reason, "marker")

	// The valid line still parses.
	require.Len(t, file.Requirements(), 1)
}

// TestRequirementKey verifies installer-style name normalization.
func TestRequirementKey(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"oslo.config": "oslo-config",
		"Oslo_Config": "oslo-config",
		"pbr":         "pbr",
	}
	for name, key := range cases {
		req := &Requirement{Name: name}
		require.Equal(t, key, req.Key())
	}
}
