package content

import (
	"errors"
	"testing"
)

func TestParseCaption(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want Fragment
	}{
		{
			name: "code and title only",
			in:   "12 - Title",
			want: Fragment{Code: "12", Title: "Title"},
		},
		{
			name: "hash prefix and colon",
			in:   "#915: The Movie",
			want: Fragment{Code: "915", Title: "The Movie"},
		},
		{
			name: "mixed separators",
			in:   "7 -:– Title With Spaces ",
			want: Fragment{Code: "7", Title: "Title With Spaces"},
		},
		{
			name: "no space around separator",
			in:   "7-Title",
			want: Fragment{Code: "7", Title: "Title"},
		},
		{
			name: "all fields",
			in:   "12 - Title\nCategory: Action\nDescription: Line1\nExtra line2",
			want: Fragment{Code: "12", Title: "Title", Category: "Action", Description: "Line1\nExtra line2"},
		},
		{
			name: "category after description is description text",
			in:   "12 - Title\nDescription: D1\nCategory: X",
			want: Fragment{Code: "12", Title: "Title", Description: "D1\nCategory: X"},
		},
		{
			name: "labels are case insensitive",
			in:   "12 - Title\ncategory: drama\nDESCRIPTION: text",
			want: Fragment{Code: "12", Title: "Title", Category: "drama", Description: "text"},
		},
		{
			name: "first category wins",
			in:   "12 - Title\nCategory: A\nCategory: B",
			want: Fragment{Code: "12", Title: "Title", Category: "A"},
		},
		{
			name: "unlabelled lines are ignored",
			in:   "12 - Title\nsome noise\nCategory: A\nmore noise",
			want: Fragment{Code: "12", Title: "Title", Category: "A"},
		},
		{
			name: "bare description label takes following lines",
			in:   "12 - Title\nDescription:\n  first\n\nsecond  ",
			want: Fragment{Code: "12", Title: "Title", Description: "first\nsecond"},
		},
		{
			name: "blank lines and crlf",
			in:   "\r\n  12 - Title\r\n\r\nCategory: A\r\n",
			want: Fragment{Code: "12", Title: "Title", Category: "A"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCaption(tc.in)
			if err != nil {
				t.Fatalf("ParseCaption(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseCaption(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseCaptionFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want ParseErrorKind
	}{
		{"", EmptyCaption},
		{"   \n  ", EmptyCaption},
		{"abc - Title", MalformedHeader},
		{"12 Title", MalformedHeader},
		{"12 - ", MalformedHeader},
		{"12 -   \nCategory: A", MalformedHeader},
		{"Title - 12", MalformedHeader},
	}
	for _, tc := range cases {
		_, err := ParseCaption(tc.in)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("ParseCaption(%q) error = %v, want *ParseError", tc.in, err)
		}
		if pe.Kind != tc.want {
			t.Fatalf("ParseCaption(%q) kind = %v, want %v", tc.in, pe.Kind, tc.want)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12", "12", true},
		{" #915 ", "915", true},
		{"#", "", false},
		{"12a", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeCode(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NormalizeCode(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRecordCaption(t *testing.T) {
	t.Parallel()

	r := Record{Title: "Heat", Description: "Crime film"}
	if got, want := r.Caption(), "🎬 Heat\n🏷 Unknown\nCrime film"; got != want {
		t.Fatalf("Caption() = %q, want %q", got, want)
	}
	r = Record{Title: "Heat", Category: "Crime"}
	if got, want := r.Caption(), "🎬 Heat\n🏷 Crime"; got != want {
		t.Fatalf("Caption() = %q, want %q", got, want)
	}
}
