package records

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"user_id,username,email,course_id,is_verified,verification_date",
		"1,alice,a@x.com,course-v1:Org+C1+2024,True,2024-01-02",
		"2,bob,bogus,bad-id,False,",
	}, "\n")

	batch, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"user_id", "username", "email", "course_id", "is_verified", "verification_date"}, batch.Header)
	assert.Equal(t, []string{"user_id", "is_verified", "verification_date"}, batch.ExtraColumns())
	require.Len(t, batch.Rows, 2)

	alice := batch.Rows[0]
	assert.Equal(t, 2, alice.Line)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, "a@x.com", alice.Email)
	assert.Equal(t, "course-v1:Org+C1+2024", alice.CourseID)
	assert.Equal(t, []Field{
		{Name: "user_id", Value: "1"},
		{Name: "is_verified", Value: "True"},
		{Name: "verification_date", Value: "2024-01-02"},
	}, alice.Extra)
	assert.False(t, alice.Short)

	v, ok := batch.Rows[1].Field("is_verified")
	assert.True(t, ok)
	assert.Equal(t, "False", v)
	_, ok = batch.Rows[1].Field("nope")
	assert.False(t, ok)
}

func TestParse_HeaderByName(t *testing.T) {
	input := "COURSE_ID , Email,Username\ncourse-v1:Org+C1+2024,a@x.com,alice\n"

	batch, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)

	row := batch.Rows[0]
	assert.Equal(t, "alice", row.Username)
	assert.Equal(t, "a@x.com", row.Email)
	assert.Equal(t, "course-v1:Org+C1+2024", row.CourseID)
	assert.Empty(t, row.Extra)
}

func TestParse_BOMAndSpreadsheetHeader(t *testing.T) {
	input := "\xEF\xBB\xBF=\"username\",email,course_id\nalice,a@x.com,Org/C1/R\n"

	batch, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "alice", batch.Rows[0].Username)
}

func TestParse_ShortRowKept(t *testing.T) {
	input := "username,email,course_id,is_verified\nalice,a@x.com\n"

	batch, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)

	row := batch.Rows[0]
	assert.True(t, row.Short)
	assert.Equal(t, "alice", row.Username)
	assert.Equal(t, "", row.CourseID)
	assert.Equal(t, []Field{{Name: "is_verified", Value: ""}}, row.Extra)
}

func TestParse_BlankRecordsSkipped(t *testing.T) {
	input := "username,email,course_id\n\nalice,a@x.com,Org/C1/R\n , ,\nbob,b@x.com,Org/C1/R\n"

	batch, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "alice", batch.Rows[0].Username)
	assert.Equal(t, 3, batch.Rows[0].Line)
	assert.Equal(t, "bob", batch.Rows[1].Username)
	assert.Equal(t, 5, batch.Rows[1].Line)
}

func TestParse_StrayQuoteKeptLiteral(t *testing.T) {
	input := "username,email,course_id\n" +
		"alice,a@x.com,Org/C1/R\n" +
		"bo\"b,b\"@x.com,Org/C1/R\n" +
		"bob,b@x.com,Org/C1/R\n"

	batch, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 3)

	assert.Equal(t, "alice", batch.Rows[0].Username)
	assert.Equal(t, `bo"b`, batch.Rows[1].Username)
	assert.Equal(t, `b"@x.com`, batch.Rows[1].Email)
	assert.Equal(t, 3, batch.Rows[1].Line)
	assert.Equal(t, "bob", batch.Rows[2].Username)
}

func TestParse_ReadErrorNamesLine(t *testing.T) {
	boom := errors.New("disk gone")
	src := io.MultiReader(
		strings.NewReader("username,email,course_id\n\nalice,a@x.com,Org/C1/R\n"),
		iotest.ErrReader(boom),
	)

	_, err := Parse(src, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after line 3")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    Options
		wantErr error
	}{
		{name: "empty source", input: "", wantErr: ErrNoHeader},
		{name: "missing course column", input: "username,email\nalice,a@x.com\n", wantErr: ErrMissingColumn},
		{name: "missing all columns", input: "foo\nbar\n", wantErr: ErrMissingColumn},
		{
			name:    "too large",
			input:   "username,email,course_id\n" + strings.Repeat("alice,a@x.com,Org/C1/R\n", 100),
			opts:    Options{MaxBytes: 64},
			wantErr: ErrInputTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestParse_MissingColumnsNamed(t *testing.T) {
	_, err := Parse(strings.NewReader("username\nalice\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email, course_id")
}

func TestMakeHeaderIndex_FirstWins(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Email", "username", "email"})
	assert.Equal(t, 0, idx["email"])
	assert.Equal(t, 1, idx["username"])
}
