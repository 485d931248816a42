package geometry

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places that coordinates and bounding
// box bounds carry once persisted. Rounding is half-to-even so repeated
// enrichment runs re-serialize byte for byte.
const Precision = 5

// Number is a fixed-point decimal coordinate component. It serializes as an
// unquoted decimal literal in JSON and as a number attribute in DynamoDB,
// never as binary floating point.
type Number struct {
	d decimal.Decimal
}

func NewNumber(f float64) Number {
	return Number{d: decimal.NewFromFloat(f)}
}

func NumberFromString(s string) (Number, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}, errors.Wrapf(err, "parsing decimal %q", s)
	}
	return Number{d: d}, nil
}

// Round rescales to the given number of decimal places using banker's
// rounding. The result always carries exactly `places` fractional digits.
func (n Number) Round(places int32) Number {
	return Number{d: n.d.RoundBank(places)}
}

func (n Number) Float64() float64 {
	f, _ := n.d.Float64()
	return f
}

func (n Number) String() string { return n.d.String() }

func (n Number) Cmp(other Number) int { return n.d.Cmp(other.d) }

func (n Number) LessThan(other Number) bool { return n.d.Cmp(other.d) < 0 }

func (n Number) Equal(other Number) bool { return n.d.Cmp(other.d) == 0 }

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.d.String()), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		n.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "parsing decimal %q", s)
	}
	n.d = d
	return nil
}

// MarshalDynamoDBAttributeValue stores the value as a DynamoDB number so the
// metadata tier keeps the exact decimal representation.
func (n Number) MarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	av.N = aws.String(n.d.String())
	return nil
}

func (n *Number) UnmarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	var s string
	switch {
	case av.N != nil:
		s = *av.N
	case av.S != nil:
		s = *av.S
	case av.NULL != nil && *av.NULL:
		n.d = decimal.Zero
		return nil
	default:
		return errors.New("attribute is not a number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "parsing decimal attribute %q", s)
	}
	n.d = d
	return nil
}
