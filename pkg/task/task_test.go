package task

import (
    "encoding/json"
    "errors"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
    cases := []struct{
        in      string
        want    ID
        wantErr error
    }{
        {"journalnode.1", ID{Role: RoleJournal, Index: 1}, nil},
        {"namenode.2.1700000000", ID{Role: RoleMetadata, Index: 2, Suffix: "1700000000"}, nil},
        {"zkfc.1.a.b", ID{Role: RoleFailover, Index: 1, Suffix: "a.b"}, nil},
        {" journalnode.3 ", ID{Role: RoleJournal, Index: 3}, nil},
        {"datanode.1", ID{}, ErrUnknownRole},
        {"journalnode", ID{}, ErrMalformedID},
        {"journalnode.0", ID{}, ErrMalformedID},
        {"journalnode.x", ID{}, ErrMalformedID},
        {"namenode.1.", ID{}, ErrMalformedID},
        {"", ID{}, ErrMalformedID},
    }
    for _, c := range cases {
        got, err := ParseID(c.in)
        if c.wantErr != nil {
            assert.Truef(t, errors.Is(err, c.wantErr), "%q: got err %v, want %v", c.in, err, c.wantErr)
            continue
        }
        require.NoError(t, err, c.in)
        assert.Equal(t, c.want, got, c.in)
    }
}

// Role prefixes overlap ("namenode" is a substring of many IDs); the
// structured form must not confuse them.
func TestParseIDDoesNotMatchSubstrings(t *testing.T) {
    _, err := ParseID("secondarynamenode.1")
    assert.ErrorIs(t, err, ErrUnknownRole)

    id, err := ParseID("zkfc.1.namenode")
    require.NoError(t, err)
    assert.Equal(t, RoleFailover, id.Role)
}

func TestIDStringRoundTrip(t *testing.T) {
    for _, s := range []string{"journalnode.1", "namenode.2.abc", "zkfc.1"} {
        id, err := ParseID(s)
        require.NoError(t, err)
        assert.Equal(t, s, id.String())
    }
}

func TestDescriptorJSON(t *testing.T) {
    var d Descriptor
    err := json.Unmarshal([]byte(`{"id":"namenode.1.x","command":"bin/hdfs namenode"}`), &d)
    require.NoError(t, err)
    assert.Equal(t, ID{Role: RoleMetadata, Index: 1, Suffix: "x"}, d.ID)

    err = json.Unmarshal([]byte(`{"id":"bogus.1"}`), &d)
    assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestRoleHost(t *testing.T) {
    assert.Equal(t, "journalnode3.hdfs.mesos", RoleJournal.Host(3, "hdfs", "mesos"))
    assert.Equal(t, "namenode1.fw.example.com", RoleMetadata.Host(1, "fw", "example.com"))
}

func TestParseSignal(t *testing.T) {
    s, ok := ParseSignal([]byte("-i"))
    assert.True(t, ok)
    assert.Equal(t, SignalInit, s)
    assert.Equal(t, "-i", s.Literal())

    s, ok = ParseSignal([]byte("-b"))
    assert.True(t, ok)
    assert.Equal(t, SignalBootstrap, s)

    _, ok = ParseSignal([]byte("reload"))
    assert.False(t, ok)
    _, ok = ParseSignal(nil)
    assert.False(t, ok)
}
