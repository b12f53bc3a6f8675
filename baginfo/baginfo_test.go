package baginfo_test

import (
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/srerickson/bagit-go/baginfo"
)

func TestSetRejectsGenerated(t *testing.T) {
	is := is.New(t)
	s := baginfo.New()
	err := s.Set("Payload-Oxum", "1.1")
	is.True(err != nil)
}

func TestSetGetAllRoundTrip(t *testing.T) {
	is := is.New(t)
	s := baginfo.New()
	is.NoErr(s.Set("Source-Organization", "ACME"))
	is.NoErr(s.Set("Contact-Name", "Alice"))
	is.NoErr(s.Set("Contact-Name", "Bob"))

	is.True(s.Has("source-organization"))
	is.Equal(s.GetAll("CONTACT-NAME"), []string{"Alice", "Bob"})
}

func TestRemoveAllAndRemoveAt(t *testing.T) {
	is := is.New(t)
	s := baginfo.New()
	is.NoErr(s.Set("X", "1"))
	is.NoErr(s.Set("X", "2"))
	is.NoErr(s.Set("X", "3"))

	s.RemoveAt("x", 1)
	is.Equal(s.GetAll("x"), []string{"1", "3"})

	s.RemoveAll("x")
	is.True(!s.Has("x"))
}

func TestParseBasicAndContinuation(t *testing.T) {
	is := is.New(t)
	src := "Source-Organization: ACME\n" +
		"Contact-Name: Alice\n" +
		" Cooper\n" +
		"\n" +
		"External-Description: a bag\n"

	s, problems, err := baginfo.Parse(strings.NewReader(src), true)
	is.NoErr(err)
	is.Equal(len(problems), 0)

	is.Equal(s.GetAll("source-organization"), []string{"ACME"})
	is.Equal(s.GetAll("contact-name"), []string{"Alice Cooper"})
}

func TestParseContinuationWithoutPredecessor(t *testing.T) {
	is := is.New(t)
	s, problems, err := baginfo.Parse(strings.NewReader(" orphan continuation\n"), true)
	is.NoErr(err)
	is.Equal(len(s.Entries()), 0)
	is.True(len(problems) == 1)
	is.Equal(string(problems[0].Kind), "bag-info-parse")
}

func TestParseRepeatabilityRules(t *testing.T) {
	is := is.New(t)
	src := "Payload-Oxum: 1.1\nPayload-Oxum: 2.2\n"
	_, problems, err := baginfo.Parse(strings.NewReader(src), true)
	is.NoErr(err)
	is.True(len(problems) == 1)
	is.Equal(string(problems[0].Kind), "repeatability-conflict")
	is.Equal(problems[0].Line, 2)
}

func TestParseShouldNotRepeatIsWarningKind(t *testing.T) {
	is := is.New(t)
	src := "Bagging-Date: 2026-01-01\nBagging-Date: 2026-01-02\n"
	_, problems, err := baginfo.Parse(strings.NewReader(src), true)
	is.NoErr(err)
	is.True(len(problems) == 1)
	is.Equal(string(problems[0].Kind), "repeatability")
}

func TestParseWhitespaceAroundTagVersionOneError(t *testing.T) {
	is := is.New(t)
	src := "Source-Organization : ACME\n"
	_, problems, err := baginfo.Parse(strings.NewReader(src), true)
	is.NoErr(err)
	is.True(len(problems) == 1)
}

func TestSerializeDropsGeneratedAndFolds(t *testing.T) {
	is := is.New(t)
	s := baginfo.New()
	is.NoErr(s.Set("Source-Organization", "ACME"))

	var buf strings.Builder
	is.NoErr(s.Serialize(&buf, 3, 1, "2026-08-06"))

	out := buf.String()
	is.True(strings.Contains(out, "Source-Organization: ACME\n"))
	is.True(strings.Contains(out, "Payload-Oxum: 3.1\n"))
	is.True(strings.Contains(out, "Bagging-Date: 2026-08-06\n"))
}

func TestFoldLongValue(t *testing.T) {
	is := is.New(t)
	s := baginfo.New()
	long := strings.Repeat("word ", 30)
	is.NoErr(s.Set("External-Description", strings.TrimSpace(long)))

	var buf strings.Builder
	is.NoErr(s.Serialize(&buf, 0, 0, "2026-08-06"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, "  ") {
			found = true
		}
		is.True(len(l) <= 80)
	}
	is.True(found)
}
