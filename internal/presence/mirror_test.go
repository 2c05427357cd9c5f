package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisMirror_Sync(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewRedisMirror(db, 30*time.Second)

	mock.ExpectTxPipeline()
	mock.ExpectDel(OnlineKey).SetVal(1)
	mock.ExpectHSet(OnlineKey,
		"a", `{"userId":"a","displayName":"User a"}`,
		"b", `{"userId":"b","displayName":"User b","avatar":"b.png"}`,
	).SetVal(2)
	mock.ExpectExpire(OnlineKey, 30*time.Second).SetVal(true)
	mock.ExpectPublish(UpdatesChannel, "2").SetVal(0)
	mock.ExpectTxPipelineExec()

	err := m.Sync(context.Background(), []User{
		user("a"),
		{UserID: "b", DisplayName: "User b", Avatar: "b.png"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisMirror_SyncEmptySnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewRedisMirror(db, 30*time.Second)

	mock.ExpectTxPipeline()
	mock.ExpectDel(OnlineKey).SetVal(1)
	mock.ExpectPublish(UpdatesChannel, "0").SetVal(0)
	mock.ExpectTxPipelineExec()

	require.NoError(t, m.Sync(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingMirror struct {
	mu    sync.Mutex
	calls [][]User
	err   error
}

func (m *recordingMirror) Sync(_ context.Context, users []User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, users)
	return m.err
}

func (m *recordingMirror) last() ([]User, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil, 0
	}
	return m.calls[len(m.calls)-1], len(m.calls)
}

func TestRunMirror_SyncsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(LastWriteWins)
	m := &recordingMirror{}
	RunMirror(ctx, reg, m, time.Hour)

	reg.Register("c1", user("a"))

	require.Eventually(t, func() bool {
		users, _ := m.last()
		return len(users) == 1 && users[0].UserID == "a"
	}, time.Second, 10*time.Millisecond)

	reg.Unregister("c1")

	require.Eventually(t, func() bool {
		users, n := m.last()
		return n >= 2 && len(users) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSyncOnce_ErrorIsSwallowed(t *testing.T) {
	reg := NewRegistry(LastWriteWins)
	m := &recordingMirror{err: errors.New("redis down")}

	assert.NotPanics(t, func() { syncOnce(context.Background(), reg, m) })
	_, n := m.last()
	assert.Equal(t, 1, n)
}
