package fits

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FITS container geometry. Every header and data unit is padded out to a
// whole number of 2880-byte blocks, and headers are sequences of 80-byte
// card images, 36 to a block.
const (
	BlockSize     = 2880
	cardSize      = 80
	cardsPerBlock = BlockSize / cardSize
)

// A Card is a single 80-character header record. Value holds one of
// string, bool, int64, float64, complex128, or nil for valueless cards
// (COMMENT, HISTORY, blank keywords, and END).
type Card struct {
	Keyword string
	Value   any
	Comment string
}

// IsValueless reports whether the card carries no value indicator. COMMENT
// and HISTORY cards, and blank-keyword continuation cards, are valueless.
func (c Card) IsValueless() bool { return c.Value == nil }

// A Header is an ordered collection of cards plus a keyword index. Order is
// preserved so a header can be written back in its original form.
type Header struct {
	cards []Card
	index map[string][]int
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{index: map[string][]int{}}
}

// Append adds a card to the end of the header. Repeated keywords (COMMENT,
// HISTORY) accumulate.
func (h *Header) Append(c Card) {
	h.index[c.Keyword] = append(h.index[c.Keyword], len(h.cards))
	h.cards = append(h.cards, c)
}

// Set replaces the value and comment of the first card with the given
// keyword, appending a new card if the keyword is not present.
func (h *Header) Set(keyword string, value any, comment string) {
	if ix, ok := h.index[keyword]; ok {
		h.cards[ix[0]].Value = value
		if comment != "" {
			h.cards[ix[0]].Comment = comment
		}

		return
	}

	h.Append(Card{Keyword: keyword, Value: value, Comment: comment})
}

// Get returns the first card with the given keyword.
func (h *Header) Get(keyword string) (Card, bool) {
	ix, ok := h.index[keyword]
	if !ok {
		return Card{}, false
	}

	return h.cards[ix[0]], true
}

// Has reports whether the keyword is present.
func (h *Header) Has(keyword string) bool {
	_, ok := h.index[keyword]

	return ok
}

// Cards returns the cards in file order. The returned slice must not be
// modified.
func (h *Header) Cards() []Card { return h.cards }

// Len returns the number of cards, including the END card if present.
func (h *Header) Len() int { return len(h.cards) }

// Int returns the named keyword as an int64. Float-valued cards are not
// converted.
func (h *Header) Int(keyword string) (int64, bool) {
	c, ok := h.Get(keyword)
	if !ok {
		return 0, false
	}

	v, ok := c.Value.(int64)

	return v, ok
}

// Float returns the named keyword as a float64. Integer-valued cards are
// converted.
func (h *Header) Float(keyword string) (float64, bool) {
	c, ok := h.Get(keyword)
	if !ok {
		return 0, false
	}

	switch v := c.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Str returns the named keyword as a string.
func (h *Header) Str(keyword string) (string, bool) {
	c, ok := h.Get(keyword)
	if !ok {
		return "", false
	}

	v, ok := c.Value.(string)

	return v, ok
}

// Bool returns the named keyword as a bool.
func (h *Header) Bool(keyword string) (bool, bool) {
	c, ok := h.Get(keyword)
	if !ok {
		return false, false
	}

	v, ok := c.Value.(bool)

	return v, ok
}

// IntOr returns the named keyword as an int64, or def if absent.
func (h *Header) IntOr(keyword string, def int64) int64 {
	if v, ok := h.Int(keyword); ok {
		return v
	}

	return def
}

// FloatOr returns the named keyword as a float64, or def if absent.
func (h *Header) FloatOr(keyword string, def float64) float64 {
	if v, ok := h.Float(keyword); ok {
		return v
	}

	return def
}

// BitPix returns the BITPIX value, or 0 if absent.
func (h *Header) BitPix() int {
	v, _ := h.Int("BITPIX")

	return int(v)
}

// NAxis returns the NAXIS value, or 0 if absent.
func (h *Header) NAxis() int {
	v, _ := h.Int("NAXIS")

	return int(v)
}

// Shape returns the data dimensions in row-major (slowest-first) order,
// i.e. the reverse of the NAXIS1..NAXISn file order. A dataless HDU returns
// an empty shape.
func (h *Header) Shape() []int {
	n := h.NAxis()
	shape := make([]int, n)

	for i := 1; i <= n; i++ {
		v, _ := h.Int(axisKeyword("NAXIS", i))
		shape[n-i] = int(v)
	}

	return shape
}

// axisKeyword builds indexed keywords such as NAXIS2 or TFORM17.
func axisKeyword(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}

// parseHeader reads consecutive 2880-byte blocks from r at offset off until
// a block containing the END card is consumed. It returns the header and
// the number of bytes read (always a multiple of BlockSize).
func parseHeader(r io.ReaderAt, off int64) (*Header, int64, error) {
	h := NewHeader()
	buf := make([]byte, BlockSize)

	var n int64

	for {
		if _, err := r.ReadAt(buf, off+n); err != nil {
			if err == io.EOF && n == 0 {
				return nil, 0, io.EOF
			}

			return nil, 0, fmt.Errorf("read header block at %d: %w", off+n, err)
		}

		n += BlockSize

		done, err := h.parseBlock(buf)
		if err != nil {
			return nil, 0, err
		}

		if done {
			return h, n, nil
		}
	}
}

// parseBlock parses the 36 card images in a header block, appending to h.
// It reports whether the END card was seen.
func (h *Header) parseBlock(block []byte) (bool, error) {
	for i := 0; i < cardsPerBlock; i++ {
		image := string(block[i*cardSize : (i+1)*cardSize])

		card, err := parseCard(image)
		if err != nil {
			return false, err
		}

		if card.Keyword == "END" {
			h.Append(card)

			return true, nil
		}

		// skip padding after END-less blank tail cards
		if card.Keyword == "" && card.IsValueless() && card.Comment == "" {
			continue
		}

		h.Append(card)
	}

	return false, nil
}

// parseCard interprets one 80-character card image. The value indicator
// "= " must occupy bytes 8-9 exactly; anything else is a valueless card
// whose remainder is kept as the comment.
func parseCard(image string) (Card, error) {
	keyword := strings.TrimRight(image[:8], " ")

	if image[8:10] != "= " {
		return Card{Keyword: keyword, Comment: strings.TrimSpace(image[8:])}, nil
	}

	rest := strings.TrimSpace(image[10:])
	if rest == "" {
		return Card{Keyword: keyword}, nil
	}

	if rest[0] == '\'' {
		return parseStringCard(keyword, rest)
	}

	value := rest
	comment := ""

	if j := strings.Index(rest, "/"); j != -1 {
		value = strings.TrimSpace(rest[:j])
		comment = strings.TrimSpace(rest[j+1:])
	}

	if value == "" {
		return Card{Keyword: keyword, Comment: comment}, nil
	}

	v, err := parseValue(value)
	if err != nil {
		return Card{}, fmt.Errorf("card %q: %w", keyword, err)
	}

	return Card{Keyword: keyword, Value: v, Comment: comment}, nil
}

// parseValue interprets a non-string card value.
func parseValue(value string) (any, error) {
	switch value[0] {
	case 'T':
		return true, nil
	case 'F':
		return false, nil
	case '(':
		var re, im float64
		if _, err := fmt.Sscanf(value, "(%f,%f)", &re, &im); err != nil {
			return nil, fmt.Errorf("bad complex value %q", value)
		}

		return complex(re, im), nil
	}

	// Fortran-style D exponents are legal in FITS floats
	if strings.ContainsAny(value, ".EDed") {
		value = strings.Replace(value, "D", "E", 1)
		value = strings.Replace(value, "d", "e", 1)

		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("bad float value %q", value)
		}

		return f, nil
	}

	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad integer value %q", value)
	}

	return i, nil
}

// parseStringCard handles quoted string values, where a pair of single
// quotes encodes a literal quote and the comment may follow the closing
// quote. Trailing spaces inside the quotes are not significant.
func parseStringCard(keyword, rest string) (Card, error) {
	var sb strings.Builder

	// state: 1 = inside string, 2 = just saw a quote
	state := 1
	i := 1

loop:
	for ; i < len(rest); i++ {
		quote := rest[i] == '\''

		switch state {
		case 1:
			if quote {
				state = 2
			} else {
				sb.WriteByte(rest[i])
			}
		case 2:
			if quote {
				sb.WriteByte('\'')
				state = 1
			} else {
				break loop
			}
		}
	}

	if state != 2 {
		return Card{}, fmt.Errorf("card %q: unterminated string value", keyword)
	}

	comment := ""

	tail := strings.TrimSpace(rest[i:])
	if strings.HasPrefix(tail, "/") {
		comment = strings.TrimSpace(tail[1:])
	}

	return Card{
		Keyword: keyword,
		Value:   strings.TrimRight(sb.String(), " "),
		Comment: comment,
	}, nil
}

// WriteTo serializes the header as card images padded to a block boundary.
// An END card is appended if the header does not already carry one.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	for _, c := range h.cards {
		if c.Keyword == "END" {
			continue
		}

		sb.WriteString(formatCard(c))
	}

	sb.WriteString(formatCard(Card{Keyword: "END"}))

	for sb.Len()%BlockSize != 0 {
		sb.WriteByte(' ')
	}

	n, err := io.WriteString(w, sb.String())

	return int64(n), err
}

// formatCard renders a card as a fixed-format 80-character image.
func formatCard(c Card) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%-8s", c.Keyword)

	if c.Value == nil {
		if c.Comment != "" {
			sb.WriteString(c.Comment)
		}
	} else {
		sb.WriteString("= ")
		sb.WriteString(formatValue(c.Value))

		if c.Comment != "" {
			sb.WriteString(" / ")
			sb.WriteString(c.Comment)
		}
	}

	image := sb.String()
	if len(image) > cardSize {
		image = image[:cardSize]
	}

	return image + strings.Repeat(" ", cardSize-len(image))
}

// formatValue renders a card value in fixed format: strings left-justified
// from column 11, everything else right-justified to column 30.
func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		quoted := "'" + strings.ReplaceAll(v, "'", "''")
		// the standard requires string values to span columns 11-20 at minimum
		for len(quoted) < 9 {
			quoted += " "
		}

		return quoted + "'"
	case bool:
		if v {
			return fmt.Sprintf("%20s", "T")
		}

		return fmt.Sprintf("%20s", "F")
	case int64:
		return fmt.Sprintf("%20d", v)
	case int:
		return fmt.Sprintf("%20d", v)
	case float64:
		return fmt.Sprintf("%20s", strconv.FormatFloat(v, 'G', -1, 64))
	case complex128:
		return fmt.Sprintf("(%v,%v)", real(v), imag(v))
	default:
		return fmt.Sprintf("%20v", v)
	}
}
