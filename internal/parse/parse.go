// Package parse scans stylesheet text into the events the compiler needs:
// scoped selector names, composes declarations, imports, url() tokens,
// ICSS blocks and @value statements, all with byte offsets into the source.
//
// The scanner is a finite automaton driven by an explicit mode stack. The
// mode on top of the stack decides which lexical patterns are active;
// anything not recognized is passed over unchanged.
package parse

import (
	"regexp"
	"strings"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/model"
)

// Options control scoping.
type Options struct {
	// DefaultMode is the scope of selectors outside :local/:global markers.
	DefaultMode model.Mode
	// Scoping enables :local/:global handling and selector collection.
	// When false only ICSS, @value, @import and url() are processed.
	Scoping bool
	// Pure requires every selector to contain a local class or id.
	Pure bool
}

// ValueDecl is an "@value name: value;" definition.
type ValueDecl struct {
	Name  string
	Value string
	Span  model.Span
}

// ValueImport binds a local alias to a symbol exported by another module.
// It comes from "@value name as alias from 'url';" or an ":import" block;
// only the former re-exports the alias.
type ValueImport struct {
	Alias    string
	Name     string
	URL      string
	Span     model.Span
	Exported bool
}

// ExportDecl is one "name: value" pair of an ":export" block.
type ExportDecl struct {
	Name  string
	Value string
	Span  model.Span
}

// Ident is an identifier token in a declaration value or at-rule prelude,
// a candidate for value substitution.
type Ident struct {
	Name string
	Span model.Span
	// Local marks an animation name in a local scope. It is scoped like a
	// @keyframes name unless a value of the same name replaces it.
	Local bool
}

// Result holds everything found in one parse.
type Result struct {
	Selectors    []model.Selector
	Imports      []model.ImportItem
	URLs         []model.URLItem
	Values       []ValueDecl
	ValueImports []ValueImport
	Exports      []ExportDecl
	Idents       []Ident
	// Removals are spans deleted from the output: scoping markers,
	// composes declarations, @value statements and ICSS blocks.
	Removals []model.Span
	Errors   diag.List
}

// Fatal reports whether the parse stopped on a structural error.
func (r *Result) Fatal() bool {
	return r.Errors.HasFatal()
}

type mode int

const (
	modeSource mode = iota
	modeAtRule
	modeRules
	modeLocal
	modeGlobal
	modeKeyframes
)

var modeNames = [...]string{
	modeSource:    "source",
	modeAtRule:    "atrule",
	modeRules:     "rules",
	modeLocal:     "local",
	modeGlobal:    "global",
	modeKeyframes: "keyframes",
}

func (m mode) String() string {
	return modeNames[m]
}

type frame struct {
	mode      mode
	start     int
	argStart  int
	depth     int
	atName    string
	selectors []int
}

// groupAtRules contain nested rules rather than declarations.
var groupAtRules = map[string]struct{}{
	"media":          {},
	"supports":       {},
	"document":       {},
	"layer":          {},
	"container":      {},
	"scope":          {},
	"starting-style": {},
}

type parser struct {
	src    string
	pos    int
	opts   Options
	stack  []frame
	res    *Result
	failed bool

	// selector prelude state
	ruleSelectors []int
	bare          *model.Mode
	preludeDirty  bool
	complexStart  int
	complexDirty  bool
	complexLocal  bool
	parenDepth    int

	// declaration state
	declStart  bool
	inValue    bool
	animation  bool
	valueDepth int
}

// Parse scans source. It never panics; structural errors stop the scan and
// are reported in Result.Errors.
func Parse(source string, opts Options) *Result {
	p := &parser{src: source, opts: opts, res: &Result{}, complexStart: -1}
	p.push(frame{mode: modeSource})
	for p.pos < len(p.src) && !p.failed {
		switch p.top().mode {
		case modeSource:
			p.stepSource()
		case modeLocal, modeGlobal:
			p.stepScoped()
		case modeAtRule:
			p.stepAtRule()
		case modeRules:
			p.stepRules()
		case modeKeyframes:
			p.stepKeyframes()
		}
	}
	if !p.failed {
		p.finish()
	}
	return p.res
}

func (p *parser) top() *frame {
	return &p.stack[len(p.stack)-1]
}

func (p *parser) push(f frame) {
	p.stack = append(p.stack, f)
}

func (p *parser) pop() frame {
	f := p.stack[len(p.stack)-1]
	if len(p.stack) > 1 {
		p.stack = p.stack[:len(p.stack)-1]
	}
	return f
}

func (p *parser) fail(code diag.Code, offset int, format string, args ...any) {
	p.res.Errors = append(p.res.Errors, diag.New(code, p.src, offset, format, args...))
	p.failed = true
}

func (p *parser) warn(code diag.Code, offset int, format string, args ...any) {
	p.res.Errors = append(p.res.Errors, diag.New(code, p.src, offset, format, args...))
}

func (p *parser) remove(start, end int) {
	p.res.Removals = append(p.res.Removals, model.SpanOf(start, end))
}

// comment skips the comment at p.pos; an unterminated comment is fatal.
func (p *parser) comment() {
	end, ok := skipComment(p.src, p.pos)
	if !ok {
		p.fail(diag.SyntaxError, p.pos, "unterminated comment")
		return
	}
	p.pos = end
}

// str skips the string at p.pos; a string running into EOF is fatal.
func (p *parser) str() {
	end, ok := skipString(p.src, p.pos)
	if !ok {
		p.fail(diag.SyntaxError, p.pos, "unterminated string")
		return
	}
	p.pos = end
}

func (p *parser) atComment() bool {
	return p.src[p.pos] == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*'
}

func (p *parser) topLevel() bool {
	return len(p.stack) == 1
}

// currentMode is the scope applied to a selector name at this point.
func (p *parser) currentMode() model.Mode {
	switch p.top().mode {
	case modeLocal:
		return model.Local
	case modeGlobal:
		return model.Global
	}
	if p.bare != nil {
		return *p.bare
	}
	return p.opts.DefaultMode
}

func (p *parser) markContent() {
	p.preludeDirty = true
	if !p.complexDirty {
		p.complexDirty = true
		p.complexStart = p.pos
	}
}

// endComplex closes one complex selector of a rule prelude.
func (p *parser) endComplex() {
	if p.opts.Scoping && p.opts.Pure && p.complexDirty && !p.complexLocal {
		end := p.pos
		text := strings.TrimSpace(p.src[p.complexStart:end])
		p.fail(diag.ImpureSelector, p.complexStart,
			"selector %q is not pure (pure selectors must contain at least one local class or id)", text)
	}
	p.bare = nil
	p.complexDirty = false
	p.complexLocal = false
	p.complexStart = -1
}

func (p *parser) resetPrelude() {
	p.ruleSelectors = nil
	p.bare = nil
	p.parenDepth = 0
	p.preludeDirty = false
	p.complexDirty = false
	p.complexLocal = false
	p.complexStart = -1
}

func (p *parser) stepSource() {
	c := p.src[p.pos]
	switch {
	case p.atComment():
		p.comment()
	case c == '"' || c == '\'':
		p.markContent()
		p.str()
	case c == '@':
		p.atRule()
	case c == '{':
		p.openRule()
	case c == '}':
		p.resetPrelude()
		p.pop()
		p.pos++
	case c == ';':
		p.resetPrelude()
		p.pos++
	case c == ',':
		// Commas inside :is(), :where() and friends separate arguments,
		// not complex selectors.
		if p.parenDepth == 0 {
			p.endComplex()
		}
		p.pos++
	case c == '(':
		p.markContent()
		p.parenDepth++
		p.pos++
	case c == ')':
		if p.parenDepth > 0 {
			p.parenDepth--
		}
		p.pos++
	case c == '[':
		p.markContent()
		p.bracket()
	case c == ':':
		p.colon()
	case c == '.' || c == '#':
		p.selectorName()
	case isSpace(c):
		p.pos++
	default:
		p.markContent()
		p.pos++
	}
}

// stepScoped handles the argument of :local(...) and :global(...).
func (p *parser) stepScoped() {
	f := p.top()
	c := p.src[p.pos]
	switch {
	case p.atComment():
		p.comment()
	case c == '"' || c == '\'':
		p.str()
	case c == '(':
		f.depth++
		p.pos++
	case c == ')':
		f.depth--
		if f.depth > 0 {
			p.pos++
			return
		}
		if strings.TrimSpace(p.src[f.argStart:p.pos]) == "" {
			p.fail(diag.SyntaxError, f.start, ":%s() requires a selector argument", f.mode)
			return
		}
		p.remove(p.pos, p.pos+1)
		p.pos++
		p.pop()
	case c == '{' || c == '}' || c == ';':
		p.fail(diag.SyntaxError, f.start, "unterminated :%s(", f.mode)
	case c == '[':
		p.bracket()
	case c == ':':
		p.colon()
	case c == '.' || c == '#':
		p.selectorName()
	default:
		p.pos++
	}
}

func (p *parser) bracket() {
	p.pos++
	for p.pos < len(p.src) && !p.failed {
		c := p.src[p.pos]
		switch {
		case c == ']':
			p.pos++
			return
		case c == '"' || c == '\'':
			p.str()
		case c == '{' || c == '}' || c == ';':
			return
		default:
			p.pos++
		}
	}
}

func (p *parser) selectorName() {
	prefix := p.src[p.pos]
	start := p.pos + 1
	if !nameStartsAt(p.src, start) {
		p.markContent()
		p.pos++
		return
	}
	end := scanName(p.src, start)
	p.markContent()
	if p.opts.Scoping {
		m := p.currentMode()
		p.res.Selectors = append(p.res.Selectors, model.Selector{
			Name:   p.src[start:end],
			Prefix: prefix,
			Span:   model.SpanOf(start, end),
			Mode:   m,
		})
		p.ruleSelectors = append(p.ruleSelectors, len(p.res.Selectors)-1)
		if m == model.Local {
			p.complexLocal = true
		}
	}
	p.pos = end
}

func (p *parser) colon() {
	start := p.pos
	if strings.HasPrefix(p.src[start:], "::") {
		p.markContent()
		p.pos = scanName(p.src, start+2)
		return
	}
	end := scanName(p.src, start+1)
	word := strings.ToLower(p.src[start+1 : end])
	switch word {
	case "local", "global":
		if !p.opts.Scoping {
			break
		}
		m := model.Local
		fm := modeLocal
		if word == "global" {
			m, fm = model.Global, modeGlobal
		}
		if end < len(p.src) && p.src[end] == '(' {
			p.push(frame{mode: fm, start: start, argStart: end + 1, depth: 1})
			p.remove(start, end+1)
			p.pos = end + 1
			return
		}
		stop := end
		if p.markerMayEatSpace(start) {
			for stop < len(p.src) && isSpace(p.src[stop]) {
				stop++
			}
		}
		p.bare = &m
		p.remove(start, stop)
		p.pos = stop
		return
	case "export":
		if p.top().mode == modeSource && p.topLevel() && !p.preludeDirty {
			if p.icssExport(start, end) {
				return
			}
		}
	case "import":
		if p.top().mode == modeSource && p.topLevel() && !p.preludeDirty && end < len(p.src) && p.src[end] == '(' {
			if p.icssImport(start, end) {
				return
			}
		}
	}
	p.markContent()
	p.pos = end
}

// markerMayEatSpace reports whether whitespace after a bare marker at start
// can be removed without joining two compound selectors.
func (p *parser) markerMayEatSpace(start int) bool {
	i := start - 1
	for i >= 0 && (p.src[i] == ' ' || p.src[i] == '\t') {
		i--
	}
	if i < 0 {
		return true
	}
	switch p.src[i] {
	case '\n', '\r', '\f', ',', '{', '}', ';', '(', '>', '+', '~':
		return true
	}
	return i < start-1
}

func (p *parser) openRule() {
	p.endComplex()
	f := frame{mode: modeRules, start: p.pos, selectors: p.ruleSelectors}
	p.resetPrelude()
	if p.failed {
		return
	}
	p.push(f)
	p.pos++
	p.declStart = true
	p.inValue = false
}

func (p *parser) atRule() {
	start := p.pos
	end := scanName(p.src, start+1)
	if end == start+1 {
		p.markContent()
		p.pos++
		return
	}
	name := strings.ToLower(p.src[start+1 : end])
	if p.topLevel() && !p.preludeDirty {
		switch name {
		case "import":
			if p.importRule(start, end) {
				return
			}
		case "value":
			p.valueRule(start, end)
			return
		}
	}
	p.push(frame{mode: modeAtRule, start: start, atName: name})
	p.pos = end
	if p.opts.Scoping && vendorless(name) == "keyframes" {
		p.keyframesName()
	}
}

// keyframesName records the name of a @keyframes rule. The name may be
// wrapped in :local() or :global().
func (p *parser) keyframesName() {
	i := skipSpaceAndComments(p.src, p.pos)
	mode, marker := p.opts.DefaultMode, -1
	switch {
	case hasPrefixFold(p.src[i:], ":local("):
		mode, marker = model.Local, i
		i = skipSpaceAndComments(p.src, i+len(":local("))
	case hasPrefixFold(p.src[i:], ":global("):
		mode, marker = model.Global, i
		i = skipSpaceAndComments(p.src, i+len(":global("))
	}
	if !nameStartsAt(p.src, i) {
		return
	}
	end := scanName(p.src, i)
	next := end
	if marker >= 0 {
		closing := skipSpaceAndComments(p.src, end)
		if closing >= len(p.src) || p.src[closing] != ')' {
			return
		}
		p.remove(marker, i)
		p.remove(end, closing+1)
		next = closing + 1
	}
	p.res.Selectors = append(p.res.Selectors, model.Selector{
		Name:   p.src[i:end],
		Prefix: '@',
		Span:   model.SpanOf(i, end),
		Mode:   mode,
	})
	p.pos = next
}

// animationKeywords are the non-name values of the animation shorthand.
var animationKeywords = map[string]struct{}{
	"none": {}, "inherit": {}, "initial": {}, "unset": {}, "revert": {}, "revert-layer": {},
	"ease": {}, "ease-in": {}, "ease-out": {}, "ease-in-out": {}, "linear": {},
	"step-start": {}, "step-end": {}, "infinite": {},
	"normal": {}, "reverse": {}, "alternate": {}, "alternate-reverse": {},
	"forwards": {}, "backwards": {}, "both": {},
	"running": {}, "paused": {},
}

func isAnimationProperty(prop string) bool {
	prop = vendorless(prop)
	return prop == "animation" || prop == "animation-name"
}

func vendorless(name string) string {
	if strings.HasPrefix(name, "-") {
		if i := strings.IndexByte(name[1:], '-'); i >= 0 {
			return name[i+2:]
		}
	}
	return name
}

func (p *parser) stepAtRule() {
	c := p.src[p.pos]
	switch {
	case p.atComment():
		p.comment()
	case c == '"' || c == '\'':
		p.str()
	case c == '{':
		f := p.pop()
		name := vendorless(f.atName)
		switch {
		case name == "keyframes":
			p.push(frame{mode: modeKeyframes, start: p.pos})
		case hasKey(groupAtRules, name):
			p.push(frame{mode: modeSource, start: p.pos})
		default:
			p.push(frame{mode: modeRules, start: p.pos})
			p.declStart = true
			p.inValue = false
		}
		p.resetPrelude()
		p.pos++
	case c == ';':
		p.pop()
		p.resetPrelude()
		p.pos++
	case c == '}':
		p.pop()
	case isDigit(c):
		p.pos = skipNumber(p.src, p.pos)
	case nameStartsAt(p.src, p.pos):
		end := scanName(p.src, p.pos)
		if end >= len(p.src) || p.src[end] != '(' {
			p.ident(p.pos, end)
		}
		p.pos = end
	default:
		p.pos++
	}
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

func (p *parser) stepKeyframes() {
	c := p.src[p.pos]
	switch {
	case p.atComment():
		p.comment()
	case c == '"' || c == '\'':
		p.str()
	case c == '{':
		p.push(frame{mode: modeRules, start: p.pos})
		p.declStart = true
		p.inValue = false
		p.pos++
	case c == '}':
		p.pop()
		p.pos++
	default:
		p.pos++
	}
}

func (p *parser) ident(start, end int) {
	p.res.Idents = append(p.res.Idents, Ident{Name: p.src[start:end], Span: model.SpanOf(start, end)})
}

func (p *parser) stepRules() {
	c := p.src[p.pos]
	switch {
	case p.atComment():
		p.comment()
	case isSpace(c):
		p.pos++
	case c == ';' || c == '{' || c == '}':
		switch c {
		case '{':
			p.push(frame{mode: modeRules, start: p.pos})
		case '}':
			p.pop()
		}
		p.declStart = true
		p.inValue = false
		p.animation = false
		p.valueDepth = 0
		p.pos++
	case c == '"' || c == '\'':
		p.declStart = false
		p.str()
	case p.declStart && nameStartsAt(p.src, p.pos):
		start := p.pos
		end := scanName(p.src, start)
		p.declStart = false
		prop := strings.ToLower(p.src[start:end])
		if prop == "composes" || prop == "extends" {
			colon := skipSpaceAndComments(p.src, end)
			if colon < len(p.src) && p.src[colon] == ':' {
				p.composes(start, colon+1)
				return
			}
		}
		p.animation = p.opts.Scoping && p.opts.DefaultMode == model.Local && isAnimationProperty(prop)
		p.pos = end
	case c == ':' && !p.inValue:
		p.declStart = false
		p.inValue = true
		p.pos++
	case p.inValue && p.urlStart():
		p.url(p.pos, p.pos+4)
	case p.inValue && p.imageSetStart() > 0:
		p.imageSet(p.imageSetStart())
	case p.inValue && (isDigit(c) || (c == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1]))):
		p.pos = skipNumber(p.src, p.pos)
	case c == '#':
		p.declStart = false
		p.pos = scanName(p.src, p.pos+1)
	case p.inValue && nameStartsAt(p.src, p.pos):
		end := scanName(p.src, p.pos)
		if end >= len(p.src) || p.src[end] != '(' {
			p.ident(p.pos, end)
			if p.animation && p.valueDepth == 0 && !hasKey(animationKeywords, strings.ToLower(p.src[p.pos:end])) {
				p.res.Idents[len(p.res.Idents)-1].Local = true
			}
		}
		p.pos = end
	case p.inValue && c == '!':
		p.pos = scanName(p.src, skipSpaceAndComments(p.src, p.pos+1))
	case p.inValue && c == '(':
		p.valueDepth++
		p.pos++
	case p.inValue && c == ')':
		if p.valueDepth > 0 {
			p.valueDepth--
		}
		p.pos++
	default:
		p.declStart = false
		p.pos++
	}
}

// urlStart reports whether a url( token starts at p.pos.
func (p *parser) urlStart() bool {
	if !hasPrefixFold(p.src[p.pos:], "url(") {
		return false
	}
	return p.pos == 0 || !isNameByte(p.src[p.pos-1])
}

// imageSetStart returns the offset after "image-set(" at p.pos, or 0.
func (p *parser) imageSetStart() int {
	if p.pos > 0 && isNameByte(p.src[p.pos-1]) {
		return 0
	}
	for _, fn := range []string{"image-set(", "-webkit-image-set("} {
		if hasPrefixFold(p.src[p.pos:], fn) {
			return p.pos + len(fn)
		}
	}
	return 0
}

// urlToken scans the url token whose argument starts at i (just after
// "url("). It returns the raw argument, whether it was quoted, and the
// offset after the closing parenthesis. ok is false if the token is not a
// well formed url().
func (p *parser) urlToken(i int) (arg string, quoted bool, end int, ok bool) {
	i = skipSpaceAndComments(p.src, i)
	if i >= len(p.src) {
		return "", false, len(p.src), false
	}
	if c := p.src[i]; c == '"' || c == '\'' {
		strEnd, terminated := skipString(p.src, i)
		if !terminated {
			return "", true, strEnd, false
		}
		arg = unquote(p.src[i:strEnd])
		j := skipSpaceAndComments(p.src, strEnd)
		if j >= len(p.src) || p.src[j] != ')' {
			return "", true, j, false
		}
		return arg, true, j + 1, true
	}
	j := i
	for j < len(p.src) {
		c := p.src[j]
		if c == ')' {
			return strings.TrimSpace(Unescape(p.src[i:j])), false, j + 1, true
		}
		if c == '\\' && validEscape(p.src, j) {
			j = skipEscape(p.src, j)
			continue
		}
		if c == '"' || c == '\'' || c == '(' {
			return "", false, j, false
		}
		j++
	}
	return "", false, j, false
}

// url records the url() token starting at start.
func (p *parser) url(start, argStart int) {
	arg, _, end, ok := p.urlToken(argStart)
	if !ok {
		if end >= len(p.src) {
			p.fail(diag.SyntaxError, start, "unterminated url(")
			return
		}
		p.pos = argStart
		return
	}
	p.pos = end
	p.addURL(start, end, arg, false)
}

func (p *parser) addURL(start, end int, arg string, needQuotes bool) {
	trimmed := strings.TrimSpace(arg)
	switch {
	case trimmed == "":
		p.warn(diag.MalformedURL, start, "empty url in %q", p.src[start:end])
	case strings.HasPrefix(trimmed, "#"):
	default:
		p.res.URLs = append(p.res.URLs, model.URLItem{URL: trimmed, Span: model.SpanOf(start, end), NeedQuotes: needQuotes})
	}
}

// imageSet handles the arguments of image-set(); plain strings are urls.
func (p *parser) imageSet(argStart int) {
	p.pos = argStart
	depth := 1
	for p.pos < len(p.src) && !p.failed {
		c := p.src[p.pos]
		switch {
		case p.atComment():
			p.comment()
		case c == '"' || c == '\'':
			start := p.pos
			p.str()
			if depth == 1 && !p.failed {
				p.addURL(start, p.pos, unquote(p.src[start:p.pos]), true)
			}
		case p.urlStart():
			p.url(p.pos, p.pos+4)
		case c == '(':
			depth++
			p.pos++
		case c == ')':
			depth--
			p.pos++
			if depth == 0 {
				return
			}
		case c == ';' || c == '{' || c == '}':
			return
		default:
			p.pos++
		}
	}
}

// composes parses a composes/extends declaration whose name starts at
// start; the value starts at i.
func (p *parser) composes(start, i int) {
	var refs []model.ExtendRef
	pending := 0
	end := -1
	for end < 0 {
		i = skipSpaceAndComments(p.src, i)
		if i >= len(p.src) {
			end = len(p.src)
			break
		}
		c := p.src[i]
		switch {
		case c == ';':
			end = i + 1
		case c == '}':
			end = i
		case c == ',':
			i++
		case nameStartsAt(p.src, i):
			e := scanName(p.src, i)
			word := p.src[i:e]
			if strings.EqualFold(word, "from") && len(refs) > pending {
				url, global, next, ok := p.composesSource(e)
				if !ok {
					p.fail(diag.SyntaxError, i, "expected a string, url() or global after from")
					return
				}
				for k := pending; k < len(refs); k++ {
					refs[k].From = url
					refs[k].Global = global
				}
				pending = len(refs)
				i = next
				continue
			}
			refs = append(refs, model.ExtendRef{Name: word, Span: model.SpanOf(i, e)})
			i = e
		default:
			p.fail(diag.SyntaxError, i, "unexpected %q in composes declaration", string(c))
			return
		}
	}
	if len(refs) == 0 {
		p.fail(diag.SyntaxError, start, "composes declaration contains no class names")
		return
	}

	rule := p.top()
	var targets []int
	seen := make(map[string]bool)
	for _, idx := range rule.selectors {
		s := &p.res.Selectors[idx]
		if s.Prefix == '.' && s.Mode == model.Local && !seen[s.Name] {
			seen[s.Name] = true
			targets = append(targets, idx)
		}
	}
	if len(targets) == 0 {
		p.fail(diag.SyntaxError, start, "composition is only allowed in rules whose selector contains a local class name")
		return
	}
	for _, idx := range targets {
		p.res.Selectors[idx].Extends = append(p.res.Selectors[idx].Extends, refs...)
	}
	p.remove(start, end)
	p.pos = end
	p.declStart = true
	p.inValue = false
}

// composesSource parses what follows "from" in a composes declaration.
func (p *parser) composesSource(i int) (url string, global bool, next int, ok bool) {
	i = skipSpaceAndComments(p.src, i)
	if i >= len(p.src) {
		return "", false, i, false
	}
	switch c := p.src[i]; {
	case c == '"' || c == '\'':
		end, terminated := skipString(p.src, i)
		if !terminated {
			return "", false, end, false
		}
		url = strings.TrimSpace(unquote(p.src[i:end]))
		return url, false, end, url != ""
	case hasPrefixFold(p.src[i:], "url("):
		arg, _, end, tokOK := p.urlToken(i + 4)
		arg = strings.TrimSpace(arg)
		return arg, false, end, tokOK && arg != ""
	case nameStartsAt(p.src, i):
		end := scanName(p.src, i)
		if strings.EqualFold(p.src[i:end], "global") {
			return "", true, end, true
		}
	}
	return "", false, i, false
}

// statementEnd returns the offset of the ";" ending the statement that
// starts at i, honoring strings, comments and parentheses, or len(src).
func (p *parser) statementEnd(i int) int {
	depth := 0
	for i < len(p.src) {
		c := p.src[i]
		switch {
		case c == '/' && i+1 < len(p.src) && p.src[i+1] == '*':
			i, _ = skipComment(p.src, i)
		case c == '"' || c == '\'':
			i, _ = skipString(p.src, i)
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case c == ';' && depth == 0:
			return i
		case (c == '{' || c == '}') && depth == 0:
			return i
		default:
			i++
		}
	}
	return i
}

// importRule parses a top-level @import. It returns false if the prelude
// is not one of the three recognized forms.
func (p *parser) importRule(start, nameEnd int) bool {
	i := skipSpaceAndComments(p.src, nameEnd)
	if i >= len(p.src) {
		return false
	}
	var url string
	switch c := p.src[i]; {
	case c == '"' || c == '\'':
		end, ok := skipString(p.src, i)
		if !ok {
			return false
		}
		url = unquote(p.src[i:end])
		i = end
	case hasPrefixFold(p.src[i:], "url("):
		arg, _, end, ok := p.urlToken(i + 4)
		if !ok {
			return false
		}
		url = arg
		i = end
	default:
		return false
	}

	semi := p.statementEnd(i)
	if semi < len(p.src) && p.src[semi] != ';' {
		return false
	}
	media := strings.TrimSpace(p.src[i:semi])
	stop := semi
	if semi < len(p.src) {
		stop++
	}
	p.pos = stop
	if strings.TrimSpace(url) == "" {
		p.warn(diag.MalformedURL, start, "empty url in @import")
		return true
	}
	p.res.Imports = append(p.res.Imports, model.ImportItem{
		URL:   strings.TrimSpace(url),
		Media: media,
		Span:  model.SpanOf(start, stop),
	})
	return true
}

var (
	valueImportRe = regexp.MustCompile(`^([\s\S]+?)\s+from\s+("[^"]*"|'[^']*'|[\w-]+)$`)
	valueDefineRe = regexp.MustCompile(`^([\w-]+)(?:\s*:\s*|\s+)([\s\S]*)$`)
	valueItemRe   = regexp.MustCompile(`^([\w-]+)(?:\s+as\s+([\w-]+))?$`)
)

// valueRule parses a top-level @value statement.
func (p *parser) valueRule(start, nameEnd int) {
	semi := p.statementEnd(nameEnd)
	stop := semi
	if semi < len(p.src) && p.src[semi] == ';' {
		stop++
	}
	text := strings.TrimSpace(p.src[nameEnd:semi])
	span := model.SpanOf(start, stop)

	if m := valueImportRe.FindStringSubmatch(text); m != nil {
		url, ok := p.valueSource(m[2])
		if !ok {
			p.fail(diag.SyntaxError, start, "@value import source %q is neither a string nor a defined value", m[2])
			return
		}
		list := strings.TrimSpace(m[1])
		list = strings.TrimSuffix(strings.TrimPrefix(list, "("), ")")
		for _, item := range strings.Split(list, ",") {
			item = strings.TrimSpace(item)
			im := valueItemRe.FindStringSubmatch(item)
			if im == nil || url == "" {
				p.fail(diag.SyntaxError, start, "invalid @value import %q", text)
				return
			}
			alias := im[1]
			if im[2] != "" {
				alias = im[2]
			}
			p.res.ValueImports = append(p.res.ValueImports, ValueImport{Alias: alias, Name: im[1], URL: url, Span: span, Exported: true})
		}
	} else if m := valueDefineRe.FindStringSubmatch(text); m != nil {
		p.res.Values = append(p.res.Values, ValueDecl{Name: m[1], Value: strings.TrimSpace(m[2]), Span: span})
	} else {
		p.fail(diag.SyntaxError, start, "invalid @value definition %q", text)
		return
	}
	p.remove(start, stop)
	p.pos = stop
}

// valueSource resolves the module reference of an @value import: a quoted
// url, or the name of an earlier value holding one.
func (p *parser) valueSource(src string) (string, bool) {
	if src[0] == '"' || src[0] == '\'' {
		return strings.TrimSpace(unquote(src)), true
	}
	for i := len(p.res.Values) - 1; i >= 0; i-- {
		v := p.res.Values[i]
		if v.Name == src && len(v.Value) > 0 && (v.Value[0] == '"' || v.Value[0] == '\'') {
			return strings.TrimSpace(unquote(v.Value)), true
		}
	}
	return "", false
}

// icssBlock parses the "name: value" pairs of an ICSS block whose "{" is at
// open. It returns the pairs and the offset after "}".
func (p *parser) icssBlock(open int) ([]ExportDecl, int, bool) {
	var decls []ExportDecl
	i := open + 1
	for {
		i = skipSpaceAndComments(p.src, i)
		if i >= len(p.src) {
			p.fail(diag.SyntaxError, open, "unterminated ICSS block")
			return nil, i, false
		}
		if p.src[i] == '}' {
			return decls, i + 1, true
		}
		if p.src[i] == ';' {
			i++
			continue
		}
		colon := strings.IndexByte(p.src[i:], ':')
		if colon < 0 {
			p.fail(diag.SyntaxError, i, "expected name: value in ICSS block")
			return nil, i, false
		}
		name := strings.TrimSpace(p.src[i : i+colon])
		if name == "" || strings.ContainsAny(name, "{};") {
			p.fail(diag.SyntaxError, i, "expected name: value in ICSS block")
			return nil, i, false
		}
		valStart := i + colon + 1
		end := p.statementEnd(valStart)
		decls = append(decls, ExportDecl{
			Name:  name,
			Value: strings.TrimSpace(p.src[valStart:end]),
			Span:  model.SpanOf(i, end),
		})
		i = end
	}
}

// icssExport parses ":export { ... }".
func (p *parser) icssExport(start, end int) bool {
	open := skipSpaceAndComments(p.src, end)
	if open >= len(p.src) || p.src[open] != '{' {
		return false
	}
	decls, stop, ok := p.icssBlock(open)
	if !ok {
		return true
	}
	p.res.Exports = append(p.res.Exports, decls...)
	p.remove(start, stop)
	p.pos = stop
	return true
}

// icssImport parses ':import("url") { alias: name; }'.
func (p *parser) icssImport(start, end int) bool {
	rparen := strings.IndexByte(p.src[end:], ')')
	if rparen < 0 {
		p.fail(diag.SyntaxError, start, "unterminated :import(")
		return true
	}
	url := strings.TrimSpace(unquote(strings.TrimSpace(p.src[end+1 : end+rparen])))
	open := skipSpaceAndComments(p.src, end+rparen+1)
	if open >= len(p.src) || p.src[open] != '{' {
		return false
	}
	if url == "" {
		p.fail(diag.SyntaxError, start, ":import() requires a url")
		return true
	}
	decls, stop, ok := p.icssBlock(open)
	if !ok {
		return true
	}
	span := model.SpanOf(start, stop)
	for _, d := range decls {
		p.res.ValueImports = append(p.res.ValueImports, ValueImport{Alias: d.Name, Name: d.Value, URL: url, Span: span})
	}
	p.remove(start, stop)
	p.pos = stop
	return true
}

func (p *parser) finish() {
	for i := len(p.stack) - 1; i >= 0; i-- {
		f := p.stack[i]
		if f.mode == modeLocal || f.mode == modeGlobal {
			p.fail(diag.SyntaxError, f.start, "unterminated :%s(", f.mode)
			return
		}
	}
}
