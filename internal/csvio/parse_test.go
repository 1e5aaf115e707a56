package csvio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, content string) (*ParseResult, error) {
	t.Helper()
	return Parse(strings.NewReader(content), ParseOptions{
		MaxBytes:      1 << 20,
		MaxTextLength: 10000,
		MaxRows:       100000,
	})
}

func TestParse_BasicColumns(t *testing.T) {
	result, err := parseString(t, "text,source,label\nhello world,twitter,1\nanother line,,\n")

	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Empty(t, result.SkippedRows)

	assert.Equal(t, "hello world", result.Rows[0].Text)
	require.NotNil(t, result.Rows[0].Source)
	assert.Equal(t, "twitter", *result.Rows[0].Source)
	require.NotNil(t, result.Rows[0].TrueLabel)
	assert.Equal(t, 1, *result.Rows[0].TrueLabel)

	assert.Nil(t, result.Rows[1].Source)
	assert.Nil(t, result.Rows[1].TrueLabel)
}

func TestParse_MissingTextColumn(t *testing.T) {
	_, err := parseString(t, "body,label\nsome text,1\n")

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidCSV, ve.Code)
	assert.Contains(t, ve.Message, "'text'")
}

func TestParse_SrcAliasAccepted(t *testing.T) {
	result, err := parseString(t, "text,src\nhello,vk\n")

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.NotNil(t, result.Rows[0].Source)
	assert.Equal(t, "vk", *result.Rows[0].Source)
}

func TestParse_BlankTextRowsSkippedAndCounted(t *testing.T) {
	result, err := parseString(t, "text\nfirst\n   \nsecond\n \n")

	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	// Row numbers are 1-indexed including the header line.
	assert.Equal(t, []int{3, 5}, result.SkippedRows)
}

func TestParse_LabelOutOfRange(t *testing.T) {
	_, err := parseString(t, "text,label\nfine,1\nbroken,5\n")

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidLabels, ve.Code)
	assert.Equal(t, 3, ve.Row)
}

func TestParse_LabelNotANumber(t *testing.T) {
	_, err := parseString(t, "text,label\nbroken,positive\n")

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidLabels, ve.Code)
	assert.Equal(t, 2, ve.Row)
}

func TestParse_IntegralFloatLabelCoerced(t *testing.T) {
	result, err := parseString(t, "text,label\nokay,1.0\n")

	require.NoError(t, err)
	require.NotNil(t, result.Rows[0].TrueLabel)
	assert.Equal(t, 1, *result.Rows[0].TrueLabel)
}

func TestParse_FractionalLabelRejected(t *testing.T) {
	_, err := parseString(t, "text,label\nbad,1.5\n")

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidLabels, ve.Code)
}

func TestParse_SemicolonDelimiter(t *testing.T) {
	result, err := parseString(t, "text;source;label\nhola; news;2\n")

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "hola", result.Rows[0].Text)
	require.NotNil(t, result.Rows[0].TrueLabel)
	assert.Equal(t, 2, *result.Rows[0].TrueLabel)
}

func TestParse_BOMStripped(t *testing.T) {
	result, err := parseString(t, "\xEF\xBB\xBFtext\nhello\n")

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "hello", result.Rows[0].Text)
}

func TestParse_InvalidEncoding(t *testing.T) {
	_, err := parseString(t, "text\n\xff\xfe broken\n")

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidEncoding, ve.Code)
}

func TestParse_EmptyFile(t *testing.T) {
	_, err := parseString(t, "")

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidCSV, ve.Code)
}

func TestParse_TooManyRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("text\n")
	for i := 0; i < 11; i++ {
		sb.WriteString("row\n")
	}

	_, err := Parse(strings.NewReader(sb.String()), ParseOptions{MaxRows: 10})

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeBatchTooLarge, ve.Code)
}

func TestParse_FileTooLarge(t *testing.T) {
	_, err := Parse(strings.NewReader("text\n"+strings.Repeat("x", 100)), ParseOptions{MaxBytes: 50})

	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidCSV, ve.Code)
	assert.Contains(t, ve.Message, "maximum size")
}

func TestParse_QuotedTextWithDelimiters(t *testing.T) {
	result, err := parseString(t, "text,label\n\"wow, that was \"\"great\"\"\",1\n")

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, `wow, that was "great"`, result.Rows[0].Text)
}
