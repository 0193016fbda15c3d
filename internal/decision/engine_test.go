package decision_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/decision"
	"github.com/dashif-labs/ssaigw/pkg/vast"
)

const inlineDoc = `<?xml version="1.0"?>
<VAST version="4.2">
  <Ad id="1">
    <InLine>
      <AdSystem>Test</AdSystem>
      <AdTitle>spot</AdTitle>
      <Creatives>
        <Creative>
          <Linear>
            <Duration>00:00:30.000</Duration>
            <MediaFiles>
              <MediaFile delivery="progressive" type="video/mp4" width="1280" height="720" bitrate="1600"><![CDATA[https://ads.example/a.mp4]]></MediaFile>
              <MediaFile delivery="progressive" type="video/mp4" width="640" height="360" bitrate="800"><![CDATA[https://ads.example/b.mp4]]></MediaFile>
            </MediaFiles>
          </Linear>
        </Creative>
      </Creatives>
    </InLine>
  </Ad>
</VAST>`

type noPods struct{}

func (noPods) GetPod(ctx context.Context, channelID, podID string) (*config.AdDecision, bool) {
	return nil, false
}

func TestDecideFromVAST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(inlineDoc))
	}))
	defer srv.Close()

	ch := &config.Channel{
		ChannelID:     "ch1",
		VastURL:       srv.URL,
		BitrateLadder: []int{800, 1600},
	}
	eng := decision.NewEngine(vast.NewClient(2*time.Second, 3), noPods{})
	d := eng.Decide(context.Background(), ch, "evt1", 30)
	require.Len(t, d.Items, 1)
	require.Equal(t, "https://ads.example/b.mp4", d.Items[0].Variants[800])
	require.Equal(t, "https://ads.example/a.mp4", d.Items[0].Variants[1600])
}

func TestDecideFallsBackToSlate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := &config.Channel{
		ChannelID:     "ch1",
		VastURL:       srv.URL,
		BitrateLadder: []int{800, 1600},
		SlateID:       "house-slate",
	}
	eng := decision.NewEngine(vast.NewClient(2*time.Second, 3), noPods{})
	d := eng.Decide(context.Background(), ch, "evt1", 30)
	require.Equal(t, "slate-house-slate", d.PodID)
	require.Equal(t, "house-slate", d.Items[0].Variants[800])
}

func TestDecideEmptyWhenNothingResolves(t *testing.T) {
	ch := &config.Channel{ChannelID: "ch1", BitrateLadder: []int{800}}
	eng := decision.NewEngine(nil, noPods{})
	d := eng.Decide(context.Background(), ch, "evt1", 30)
	require.Empty(t, d.Items)
}

func TestDecideToleratesUnreachableMemo(t *testing.T) {
	ch := &config.Channel{
		ChannelID:     "ch1",
		BitrateLadder: []int{800},
		SlateID:       "house-slate",
	}
	eng := decision.NewEngine(nil, noPods{})
	eng.Memo = redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})

	d := eng.Decide(context.Background(), ch, "evt1", 30)
	require.Equal(t, "slate-house-slate", d.PodID)
}
