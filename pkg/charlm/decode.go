package charlm

import "context"

// DecodeState is the state of a Decoder.
type DecodeState int

const (
	Running DecodeState = iota
	EndReached
	LengthLimitReached
)

func (s DecodeState) String() string {
	switch s {
	case Running:
		return "running"
	case EndReached:
		return "end reached"
	case LengthLimitReached:
		return "length limit reached"
	}
	return "unknown"
}

// Decoder extends a seed one symbol at a time by greedy prediction. It holds
// the vocabulary, length and predictor it was created with for its whole life.
type Decoder struct {
	predictor Predictor
	vocab     *Vocabulary
	length    int

	context []rune
	state   DecodeState
	steps   int
}

// NewDecoder starts a decode of seed against a session snapshot.
func NewDecoder(s *Session, seed string) *Decoder {
	return newDecoder(s.Predictor, s.Vocabulary, s.SequenceLength, seed)
}

func newDecoder(p Predictor, v *Vocabulary, length int, seed string) *Decoder {
	d := &Decoder{
		predictor: p,
		vocab:     v,
		length:    length,
		context:   []rune(seed),
	}
	if len(d.context) >= length {
		d.state = LengthLimitReached
	}
	return d
}

// Next performs one prediction step. It returns the appended symbol and true
// while the decoder keeps running, and false once a terminal state is reached.
func (d *Decoder) Next() (string, bool, error) {
	if d.state != Running {
		return "", false, nil
	}
	id, err := PredictSymbol(d.predictor, d.vocab, d.length, string(d.context))
	if err != nil {
		return "", false, err
	}
	d.steps++
	if id == EndIndex {
		d.state = EndReached
		return "", false, nil
	}
	r := unknownRune
	if id != UnknownIndex {
		r = []rune(d.vocab.Symbol(id))[0]
	}
	d.context = append(d.context, r)
	if len(d.context) >= d.length {
		d.state = LengthLimitReached
	}
	return string(r), true, nil
}

func (d *Decoder) State() DecodeState { return d.state }

// Steps is the number of predictor calls made so far.
func (d *Decoder) Steps() int { return d.steps }

func (d *Decoder) Text() string { return string(d.context) }

// Decode runs a decoder to completion and returns the final text. ctx is
// checked before each prediction.
func Decode(ctx context.Context, seed string, p Predictor, v *Vocabulary, length int) (string, error) {
	d := newDecoder(p, v, length, seed)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_, more, err := d.Next()
		if err != nil {
			return "", err
		}
		if !more {
			return d.Text(), nil
		}
	}
}
