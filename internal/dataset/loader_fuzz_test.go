package dataset

import (
	"bytes"
	"testing"
)

// FuzzSniffDelimiter fuzzes delimiter detection with random header lines.
func FuzzSniffDelimiter(f *testing.F) {
	seeds := []string{
		"id,gender,region\n1,M,N\n",
		"id;gender;region\n",
		"id\tgender\n",
		"\"a,b\";c\n",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data string) {
		switch d := SniffDelimiter([]byte(data)); d {
		case ',', ';', '\t', '|':
		default:
			t.Fatalf("SniffDelimiter(%q) = %q", data, d)
		}
	})
}

// FuzzReadCSV fuzzes the CSV loader so malformed input errors instead of panicking.
func FuzzReadCSV(f *testing.F) {
	seeds := []string{
		"id,q1\n1,Yes\n2,No\n",
		"\ufeffid;q1\n1;Yes\n",
		"a,a\n1,2\n",
		"x\n1,2,3\n",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data string) {
		ds, err := ReadCSV(bytes.NewReader([]byte(data)), "fuzz.csv", 0)
		if err != nil {
			return
		}
		for _, rec := range ds.Records {
			if len(rec) != len(ds.Header) {
				t.Fatalf("record has %d cells, header has %d", len(rec), len(ds.Header))
			}
		}
	})
}
