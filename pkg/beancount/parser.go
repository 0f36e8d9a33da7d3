package beancount

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseError reports a syntax error at a position in a Beancount file.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

var (
	dateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	accountRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9-]*(:[A-Z0-9][A-Za-z0-9-]*)+$`)
	metaKeyRe = regexp.MustCompile(`^[a-z][A-Za-z0-9_-]*:$`)
)

type token struct {
	text   string
	quoted bool
}

// Parse reads directives from Beancount text. It understands open, close and
// note directives and transactions with their postings and metadata; other
// directives are skipped. A transaction may leave the amount of one posting
// blank, in which case it is inferred from the other postings.
func Parse(r io.Reader, filename string) ([]Directive, error) {
	p := &parser{filename: filename}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line++
		if err := p.parseLine(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := p.flush(); err != nil {
		return nil, err
	}
	return p.entries, nil
}

type parser struct {
	filename string
	line     int
	entries  []Directive

	// Directive currently receiving indented lines.
	current  Directive
	skipping bool
	txnLine  int
	missing  []int
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{File: p.filename, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseLine(line string) error {
	tokens, err := tokenize(line)
	if err != nil {
		return p.errorf("%v", err)
	}
	if len(tokens) == 0 {
		// Blank and comment-only lines end indented blocks only when blank.
		if strings.TrimSpace(line) == "" {
			return p.flush()
		}
		return nil
	}

	indented := line[0] == ' ' || line[0] == '\t'
	if indented {
		if p.skipping {
			return nil
		}
		if p.current == nil {
			return p.errorf("unexpected indented line")
		}
		return p.parseIndented(tokens)
	}

	if err := p.flush(); err != nil {
		return err
	}
	if !dateRe.MatchString(tokens[0].text) {
		// option, plugin, include and similar undated directives.
		p.skipping = true
		return nil
	}
	date, err := time.Parse(DateLayout, tokens[0].text)
	if err != nil {
		return p.errorf("invalid date %q", tokens[0].text)
	}
	if len(tokens) < 2 {
		return p.errorf("missing directive after date")
	}
	return p.parseDirective(date, tokens[1], tokens[2:])
}

func (p *parser) parseDirective(date time.Time, keyword token, rest []token) error {
	switch keyword.text {
	case "open":
		if len(rest) == 0 || !accountRe.MatchString(rest[0].text) {
			return p.errorf("open requires an account")
		}
		open := &Open{Date: date, Account: rest[0].text}
		for _, tok := range rest[1:] {
			for _, currency := range strings.Split(tok.text, ",") {
				if currency != "" {
					open.Currencies = append(open.Currencies, currency)
				}
			}
		}
		p.current = open
	case "close":
		if len(rest) == 0 || !accountRe.MatchString(rest[0].text) {
			return p.errorf("close requires an account")
		}
		p.current = &Close{Date: date, Account: rest[0].text}
	case "note":
		if len(rest) < 2 || !accountRe.MatchString(rest[0].text) || !rest[1].quoted {
			return p.errorf("note requires an account and a comment")
		}
		p.current = &Note{Date: date, Account: rest[0].text, Comment: rest[1].text}
	case "*", "!", "txn":
		return p.parseTransactionHeader(date, keyword.text, rest)
	default:
		if len(keyword.text) == 1 && !keyword.quoted && unicode.IsUpper(rune(keyword.text[0])) {
			return p.parseTransactionHeader(date, keyword.text, rest)
		}
		// balance, pad, price, event and other directives.
		p.skipping = true
	}
	return nil
}

func (p *parser) parseTransactionHeader(date time.Time, flag string, rest []token) error {
	if flag == "txn" {
		flag = "*"
	}
	txn := &Transaction{Date: date, Flag: flag}
	var strs []string
	for _, tok := range rest {
		switch {
		case tok.quoted:
			strs = append(strs, tok.text)
		case strings.HasPrefix(tok.text, "#"):
			txn.Tags = append(txn.Tags, tok.text[1:])
		case strings.HasPrefix(tok.text, "^"):
			txn.Links = append(txn.Links, tok.text[1:])
		default:
			return p.errorf("unexpected token %q in transaction header", tok.text)
		}
	}
	switch len(strs) {
	case 0:
	case 1:
		txn.Narration = strs[0]
	case 2:
		txn.Payee, txn.Narration = strs[0], strs[1]
	default:
		return p.errorf("too many strings in transaction header")
	}
	p.current = txn
	p.txnLine = p.line
	p.missing = nil
	return nil
}

func (p *parser) parseIndented(tokens []token) error {
	if metaKeyRe.MatchString(tokens[0].text) && !tokens[0].quoted {
		key := strings.TrimSuffix(tokens[0].text, ":")
		value := ""
		if len(tokens) > 1 {
			value = tokens[1].text
		}
		p.setMeta(key, value)
		return nil
	}

	txn, ok := p.current.(*Transaction)
	if !ok {
		return p.errorf("postings are only allowed in transactions")
	}
	posting, missing, err := p.parsePosting(tokens)
	if err != nil {
		return err
	}
	if missing {
		p.missing = append(p.missing, len(txn.Postings))
	}
	txn.Postings = append(txn.Postings, posting)
	return nil
}

func (p *parser) setMeta(key, value string) {
	set := func(m *map[string]string) {
		if *m == nil {
			*m = make(map[string]string)
		}
		(*m)[key] = value
	}
	switch e := p.current.(type) {
	case *Transaction:
		if len(e.Postings) > 0 {
			set(&e.Postings[len(e.Postings)-1].Meta)
		} else {
			set(&e.Meta)
		}
	case *Open:
		set(&e.Meta)
	case *Close:
		set(&e.Meta)
	case *Note:
		set(&e.Meta)
	}
}

func (p *parser) parsePosting(tokens []token) (Posting, bool, error) {
	var posting Posting
	i := 0
	if tokens[i].text == "!" || tokens[i].text == "*" {
		posting.Flag = tokens[i].text
		i++
	}
	if i >= len(tokens) || !accountRe.MatchString(tokens[i].text) {
		return posting, false, p.errorf("invalid posting account")
	}
	posting.Account = tokens[i].text
	i++
	if i == len(tokens) {
		return posting, true, nil
	}

	units, n, err := p.parseAmount(tokens[i:])
	if err != nil {
		return posting, false, err
	}
	posting.Units = units
	i += n

	if i < len(tokens) && tokens[i].text == "{" {
		cost, n, err := p.parseCost(tokens[i:])
		if err != nil {
			return posting, false, err
		}
		posting.Cost = cost
		i += n
	}

	if i < len(tokens) && (tokens[i].text == "@" || tokens[i].text == "@@") {
		total := tokens[i].text == "@@"
		price, n, err := p.parseAmount(tokens[i+1:])
		if err != nil {
			return posting, false, err
		}
		if total {
			if posting.Units.Number.IsZero() {
				return posting, false, p.errorf("total price on zero units")
			}
			price.Number = price.Number.Div(posting.Units.Number.Abs())
		}
		posting.Price = &price
		i += n + 1
	}

	if i != len(tokens) {
		return posting, false, p.errorf("unexpected token %q in posting", tokens[i].text)
	}
	return posting, false, nil
}

func (p *parser) parseAmount(tokens []token) (Amount, int, error) {
	if len(tokens) < 2 {
		return Amount{}, 0, p.errorf("amount requires a number and a currency")
	}
	number, err := decimal.NewFromString(tokens[0].text)
	if err != nil {
		return Amount{}, 0, p.errorf("invalid number %q", tokens[0].text)
	}
	if !isCurrency(tokens[1].text) {
		return Amount{}, 0, p.errorf("invalid currency %q", tokens[1].text)
	}
	return Amount{Number: number, Currency: tokens[1].text}, 2, nil
}

func (p *parser) parseCost(tokens []token) (*Cost, int, error) {
	end := -1
	for i, tok := range tokens {
		if tok.text == "}" && !tok.quoted {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, 0, p.errorf("unterminated cost")
	}

	cost := &Cost{}
	var parts [][]token
	var part []token
	for _, tok := range tokens[1:end] {
		if tok.text == "," && !tok.quoted {
			parts = append(parts, part)
			part = nil
			continue
		}
		part = append(part, tok)
	}
	parts = append(parts, part)

	for _, part := range parts {
		switch {
		case len(part) == 2 && !part[0].quoted:
			amount, _, err := p.parseAmount(part)
			if err != nil {
				return nil, 0, err
			}
			cost.Number, cost.Currency = amount.Number, amount.Currency
		case len(part) == 1 && part[0].quoted:
			cost.Label = part[0].text
		case len(part) == 1 && dateRe.MatchString(part[0].text):
			date, err := time.Parse(DateLayout, part[0].text)
			if err != nil {
				return nil, 0, p.errorf("invalid cost date %q", part[0].text)
			}
			cost.Date = date
		case len(part) == 0:
		default:
			return nil, 0, p.errorf("invalid cost specification")
		}
	}
	if cost.Currency == "" {
		return nil, 0, p.errorf("cost requires a number and a currency")
	}
	return cost, end + 1, nil
}

// flush finishes the directive currently being read.
func (p *parser) flush() error {
	p.skipping = false
	if p.current == nil {
		return nil
	}
	entry := p.current
	p.current = nil
	if txn, ok := entry.(*Transaction); ok {
		if err := p.inferMissing(txn); err != nil {
			return err
		}
	}
	p.entries = append(p.entries, entry)
	return nil
}

// inferMissing fills in the amount of the one posting left blank so that the
// transaction balances. A residual in several currencies expands the posting
// into one posting per currency.
func (p *parser) inferMissing(txn *Transaction) error {
	if len(p.missing) == 0 {
		return nil
	}
	if len(p.missing) > 1 {
		return &ParseError{File: p.filename, Line: p.txnLine, Msg: "more than one posting without an amount"}
	}
	index := p.missing[0]
	p.missing = nil

	residual := Inventory{}
	for i := range txn.Postings {
		if i == index {
			continue
		}
		residual.Add(txn.Postings[i].Weight())
	}
	if residual.IsEmpty() {
		return &ParseError{File: p.filename, Line: p.txnLine, Msg: "cannot infer amount of a balanced transaction"}
	}

	template := txn.Postings[index]
	inferred := make([]Posting, 0, len(residual))
	for _, a := range residual.Amounts() {
		posting := template
		posting.Units = Amount{Number: a.Number.Neg(), Currency: a.Currency}
		inferred = append(inferred, posting)
	}

	postings := make([]Posting, 0, len(txn.Postings)+len(inferred)-1)
	postings = append(postings, txn.Postings[:index]...)
	postings = append(postings, inferred...)
	postings = append(postings, txn.Postings[index+1:]...)
	txn.Postings = postings
	return nil
}

func isCurrency(s string) bool {
	if s == "" || !unicode.IsUpper(rune(s[0])) {
		return false
	}
	for _, r := range s {
		if !(unicode.IsUpper(r) || unicode.IsDigit(r) || strings.ContainsRune("'._-", r)) {
			return false
		}
	}
	return true
}

// tokenize splits a line into words, quoted strings and the punctuation
// tokens "{", "}", ",", "@" and "@@". An unquoted ';' starts a comment.
func tokenize(line string) ([]token, error) {
	var tokens []token
	var word strings.Builder
	emit := func() {
		if word.Len() > 0 {
			tokens = append(tokens, token{text: word.String()})
			word.Reset()
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == ';':
			emit()
			return tokens, nil
		case r == '"':
			emit()
			var str strings.Builder
			closed := false
			for i++; i < len(runes); i++ {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
					str.WriteRune(runes[i])
					continue
				}
				if runes[i] == '"' {
					closed = true
					break
				}
				str.WriteRune(runes[i])
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string")
			}
			tokens = append(tokens, token{text: str.String(), quoted: true})
		case unicode.IsSpace(r):
			emit()
		case r == '{' || r == '}' || r == ',':
			emit()
			tokens = append(tokens, token{text: string(r)})
		case r == '@':
			emit()
			if i+1 < len(runes) && runes[i+1] == '@' {
				i++
				tokens = append(tokens, token{text: "@@"})
			} else {
				tokens = append(tokens, token{text: "@"})
			}
		default:
			word.WriteRune(r)
		}
	}
	emit()
	return tokens, nil
}
