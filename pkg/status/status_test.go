package status

import (
    "bytes"
    "context"
    "log"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNewUpdateStampsRecord(t *testing.T) {
    a := NewUpdate("namenode.1", StateRunning, "-i")
    b := NewUpdate("namenode.1", StateRunning, "-i")
    assert.NotEmpty(t, a.UUID)
    assert.NotEqual(t, a.UUID, b.UUID)
    assert.False(t, a.Timestamp.IsZero())
    assert.Equal(t, "-i", a.Message)
}

func TestRecorderKeepsOrder(t *testing.T) {
    var r Recorder
    ctx := context.Background()
    require.NoError(t, r.Report(ctx, NewUpdate("journalnode.1", StateRunning, "")))
    require.NoError(t, r.Report(ctx, NewUpdate("namenode.1", StateRunning, "")))
    require.NoError(t, r.Report(ctx, NewUpdate("journalnode.1", StateFailed, "killed")))

    assert.Equal(t, 3, r.Len())
    jn := r.For("journalnode.1")
    require.Len(t, jn, 2)
    assert.Equal(t, StateRunning, jn[0].State)
    assert.Equal(t, StateFailed, jn[1].State)
}

func TestLogReporter(t *testing.T) {
    var buf bytes.Buffer
    r := LogReporter{Logger: log.New(&buf, "", 0)}
    require.NoError(t, r.Report(context.Background(), NewUpdate("zkfc.1", StateRunning, "")))
    assert.Contains(t, buf.String(), "task=zkfc.1 state=TASK_RUNNING")
}
