package markup

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleDescription = `# Длина строки

## Описание диагностики

Длина строки не должна превышать **120** символов.

* первый пункт
* второй пункт

1. шаг
2. ещё шаг

| Параметр | Значение |
|----------|----------|
| maxLineLength | 120 |

` + "```bsl\nПроцедура Тест()\nКонецПроцедуры\n```" + `

Вызов ` + "`Сообщить()`" + ` устарел.

## Источники

* https://its.1c.ru/db/v8std
`

func TestRender_Features(t *testing.T) {
	out := NewRenderer().Render(sampleDescription)

	assert.Contains(t, out, `<h1 id="`)
	assert.Contains(t, out, `>Длина строки</h1>`)
	assert.Contains(t, out, `<h2 id="описание-диагностики">Описание диагностики</h2>`)
	assert.Contains(t, out, "<strong>120</strong>")
	assert.Contains(t, out, "<ul>")
	assert.Contains(t, out, "<ol>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>maxLineLength</td>")
	assert.Contains(t, out, `<pre><code class="language-bsl">`)
	assert.Contains(t, out, "<code>Сообщить()</code>")
	assert.Contains(t, out, `<a href="https://its.1c.ru/db/v8std">https://its.1c.ru/db/v8std</a>`)
}

func TestRender_HeadingAnchorsAreUnique(t *testing.T) {
	out := NewRenderer().Render("## Пример\n\ntext\n\n## Пример\n")
	assert.Contains(t, out, `id="пример"`)
	assert.Contains(t, out, `id="пример-1"`)
}

func TestRender_EmptyAndBlank(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "<pre></pre>", r.Render(""))
	assert.Equal(t, "<pre>   </pre>", r.Render("   "))
}

func TestRender_NeverEmpty(t *testing.T) {
	r := NewRenderer()
	inputs := []string{
		"|||",
		"```",
		"<div>",
		"[broken](",
		"*",
		"\x00\xff",
		strings.Repeat(">", 500),
		"#",
	}
	for _, in := range inputs {
		assert.NotEmpty(t, r.Render(in), "input %q", in)
	}
}

func TestRender_Deterministic(t *testing.T) {
	a := NewRenderer().Render(sampleDescription)
	b := NewRenderer().Render(sampleDescription)
	assert.Equal(t, a, b)
}

func TestRender_LineEndingsNormalized(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, r.Render("# T\n\ntext\n"), r.Render("# T\r\n\r\ntext\r\n"))
}

func TestRender_Cache(t *testing.T) {
	r := NewRenderer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Render(sampleDescription)
			r.Render("other")
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, r.Len())
}

func TestPreformatted(t *testing.T) {
	assert.Equal(t, "<pre>&lt;b&gt; &amp; x</pre>", Preformatted("<b> & x"))
}

func FuzzRender(f *testing.F) {
	f.Add(sampleDescription)
	f.Add("")
	f.Add("| a |\n|---|\n| b")
	f.Fuzz(func(t *testing.T, in string) {
		if NewRenderer().Render(in) == "" {
			t.Fatalf("empty output for %q", in)
		}
	})
}
