package monitor_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/monitor"
	"github.com/dashif-labs/ssaigw/pkg/scte35"
)

func TestPollOnceForwardsDecodedCue(t *testing.T) {
	payload := scte35.CreateSpliceInsertPayload(scte35.SpliceInsertParams{
		PtsTime:               90000,
		SpliceEventID:         7,
		OutOfNetworkIndicator: true,
	})
	b64 := base64.StdEncoding.EncodeToString(payload)

	playlist := "#EXTM3U\n#EXT-X-VERSION:4\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXT-X-PROGRAM-DATE-TIME:2026-01-01T00:00:00.000Z\n" +
		"#EXT-OATCLS-SCTE35:" + b64 + "\n#EXTINF:6.0,\nseg0.ts\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(playlist))
	}))
	defer srv.Close()

	ch := &config.Channel{
		ChannelID:            "ch1",
		OriginURL:            srv.URL,
		Scte35Enabled:        true,
		ManifestCacheMaxAgeS: 2,
	}

	var got scte35.Cue
	var gotChannel string
	done := make(chan struct{})
	onCue := func(ctx context.Context, channelID string, cue scte35.Cue, pdt time.Time) {
		got = cue
		gotChannel = channelID
		close(done)
	}

	poller := monitor.NewChannelPoller(ch, onCue)
	go poller.Serve(contextWithTimeout(t))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for cue")
	}

	require.Equal(t, "ch1", gotChannel)
	require.Equal(t, uint32(7), got.EventID)
	require.True(t, got.OutOfNetworkIndicator)
}

func contextWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}
