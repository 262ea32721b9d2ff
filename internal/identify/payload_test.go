package identify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadParser_Valid(t *testing.T) {
	p := NewPayloadParser(30)

	id, err := p.Parse(` {"assignmentId":"A1","sectionId":"P3","unitId":"U2","studentId":"S42","versionId":"V2","variantId":"x","schemaVersion":1,"questionCount":25} `)
	require.NoError(t, err)
	assert.Equal(t, "A1", id.AssignmentID)
	assert.Equal(t, "S42", id.StudentID)
	assert.Equal(t, "V2", id.VersionID)
	assert.Equal(t, 25, id.QuestionCount)
}

func TestPayloadParser_OptionalFieldsMayBeOmitted(t *testing.T) {
	id, err := NewPayloadParser(30).Parse(`{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":1,"questionCount":10}`)
	require.NoError(t, err)
	assert.Empty(t, id.SectionID)
}

func TestPayloadParser_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `S42`},
		{"truncated", `{"assignmentId":"A1"`},
		{"wrong schema version", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":2,"questionCount":10}`},
		{"schema version as string", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":"1","questionCount":10}`},
		{"missing schema version", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","questionCount":10}`},
		{"unknown field", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":1,"questionCount":10,"grade":"A"}`},
		{"missing student", `{"assignmentId":"A1","versionId":"V1","schemaVersion":1,"questionCount":10}`},
		{"wrong type", `{"assignmentId":7,"studentId":"S1","versionId":"V1","schemaVersion":1,"questionCount":10}`},
		{"zero questions", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":1,"questionCount":0}`},
		{"too many questions", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":1,"questionCount":31}`},
		{"fractional question count", `{"assignmentId":"A1","studentId":"S1","versionId":"V1","schemaVersion":1,"questionCount":2.5}`},
		{"array", `[1,2,3]`},
	}
	p := NewPayloadParser(30)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.Parse(tt.payload)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Nil(t, id)
		})
	}
}
