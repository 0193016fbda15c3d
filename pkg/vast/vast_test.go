package vast_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dashif-labs/ssaigw/pkg/vast"
	"github.com/stretchr/testify/require"
)

const inlineDoc = `<?xml version="1.0"?>
<VAST version="4.2">
  <Ad id="1">
    <InLine>
      <AdSystem>Test</AdSystem>
      <AdTitle>Ad</AdTitle>
      <Creatives>
        <Creative>
          <Linear>
            <Duration>00:00:30.000</Duration>
            <MediaFiles>
              <MediaFile delivery="progressive" type="video/mp4" width="1280" height="720" bitrate="2500"><![CDATA[https://ads.example/high.mp4]]></MediaFile>
              <MediaFile delivery="progressive" type="video/mp4" width="640" height="360" bitrate="800"><![CDATA[https://ads.example/low.mp4]]></MediaFile>
            </MediaFiles>
          </Linear>
        </Creative>
      </Creatives>
    </InLine>
  </Ad>
</VAST>`

func wrapperDoc(targetURL string) string {
	return `<?xml version="1.0"?>
<VAST version="4.2">
  <Ad id="1">
    <Wrapper>
      <VASTAdTagURI><![CDATA[` + targetURL + `]]></VASTAdTagURI>
    </Wrapper>
  </Ad>
</VAST>`
}

func TestResolveInlineDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(inlineDoc))
	}))
	defer srv.Close()

	c := vast.NewClient(2*time.Second, 3)
	inline, err := c.ResolveInline(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Test", inline.AdSystem)
	require.Len(t, inline.Creatives, 1)
}

func TestResolveInlineFollowsWrapper(t *testing.T) {
	var inlineSrv *httptest.Server
	inlineSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(inlineDoc))
	}))
	defer inlineSrv.Close()

	wrapperSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wrapperDoc(inlineSrv.URL)))
	}))
	defer wrapperSrv.Close()

	c := vast.NewClient(2*time.Second, 3)
	inline, err := c.ResolveInline(context.Background(), wrapperSrv.URL)
	require.NoError(t, err)
	require.Equal(t, "Test", inline.AdSystem)
}

func TestResolveInlineExceedsMaxDepth(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wrapperDoc(srv.URL)))
	}))
	defer srv.Close()

	c := vast.NewClient(2*time.Second, 2)
	_, err := c.ResolveInline(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestSelectMediaFileNearestBitrate(t *testing.T) {
	inline, err := parseInline(t)
	require.NoError(t, err)

	mf, ok := vast.SelectMediaFile(inline, 1000)
	require.True(t, ok)
	require.Equal(t, "https://ads.example/low.mp4", mf.URI)

	mf, ok = vast.SelectMediaFile(inline, 3000)
	require.True(t, ok)
	require.Equal(t, "https://ads.example/high.mp4", mf.URI)
}

func parseInline(t *testing.T) (*vast.InLine, error) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(inlineDoc))
	}))
	defer srv.Close()
	c := vast.NewClient(2*time.Second, 1)
	return c.ResolveInline(context.Background(), srv.URL)
}
