package gmail

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduceHTML(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "paragraph with script",
			html: "<p>Hi</p><script>evil()</script>",
			want: "Hi",
		},
		{
			name: "style element removed with content",
			html: "<style type=\"text/css\">body { color: red; }</style><div>Body</div>",
			want: "Body",
		},
		{
			name: "uppercase tags",
			html: "<SCRIPT>x()</SCRIPT><P>One</P><BR/>Two",
			want: "One\n\nTwo",
		},
		{
			name: "headings and list items",
			html: "<h1>Title</h1><ul><li>a</li><li>b</li></ul>",
			want: "Title\n\na\n\nb",
		},
		{
			name: "only nbsp and amp decoded",
			html: "Tom&nbsp;&amp;&nbsp;Jerry &lt;3 &quot;x&quot;",
			want: "Tom & Jerry &lt;3 &quot;x&quot;",
		},
		{
			name: "newline runs collapse to two",
			html: "a<br><br><br><br>b",
			want: "a\n\nb",
		},
		{
			name: "unmatched tags stripped",
			html: "<b>bold<i> and </span>text",
			want: "bold and text",
		},
		{
			name: "pre is not a block tag",
			html: "x<pre>y</pre>z",
			want: "xyz",
		},
		{
			name: "empty input",
			html: "",
			want: "",
		},
		{
			name: "plain text is unchanged",
			html: "  already plain  ",
			want: "already plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReduceHTML(tt.html))
		})
	}
}

func TestReduceHTML_Idempotent(t *testing.T) {
	fragments := []string{
		"<p>", "</p>", "<div class=\"x\">", "</div>", "<br>", "<br/>", "<li>", "</li>",
		"<h2>", "</h2>", "<span>", "</span>", "<a href=\"https://example.com\">", "</a>",
		"<script>alert(1)</script>", "<STYLE>p{}</STYLE>", "&nbsp;", "&amp;", "&lt;",
		"hello", "world", " ", "\n", "\n\n\n", "Déjà vu", "1 > 0",
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		var b strings.Builder
		n := rng.Intn(20)
		for j := 0; j < n; j++ {
			b.WriteString(fragments[rng.Intn(len(fragments))])
		}
		input := b.String()

		once := ReduceHTML(input)
		twice := ReduceHTML(once)
		if once != twice {
			t.Fatalf("ReduceHTML not idempotent for %q: once=%q twice=%q", input, once, twice)
		}
	}
}

// Escaped entities are unescaped one level per call. This is the one input
// class on which ReduceHTML is not idempotent.
func TestReduceHTML_EscapedEntitiesDecodeOncePerCall(t *testing.T) {
	tests := []struct {
		html  string
		once  string
		twice string
	}{
		{html: "a&amp;nbsp;b", once: "a&nbsp;b", twice: "a b"},
		{html: "&amp;nbsp;", once: "&nbsp;", twice: ""},
		{html: "Tom &amp;amp; Jerry", once: "Tom &amp; Jerry", twice: "Tom & Jerry"},
	}

	for _, tt := range tests {
		t.Run(tt.html, func(t *testing.T) {
			once := ReduceHTML(tt.html)
			assert.Equal(t, tt.once, once)
			assert.Equal(t, tt.twice, ReduceHTML(once))
		})
	}
}
