// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignedURL(t *testing.T) {
	const secret = "topsecret"
	path := "/acme/sports1/v_1600k.m3u8"
	expires := time.Now().Add(time.Hour).Unix()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(path + "?expires=" + strconv.FormatInt(expires, 10)))
	sig := hex.EncodeToString(mac.Sum(nil))

	r := httptest.NewRequest("GET", path+"?expires="+strconv.FormatInt(expires, 10)+"&signature="+sig, nil)
	assert.NoError(t, verifySignedURL(r, secret))

	rBadSig := httptest.NewRequest("GET", path+"?expires="+strconv.FormatInt(expires, 10)+"&signature=deadbeef", nil)
	assert.Error(t, verifySignedURL(rBadSig, secret))

	expired := time.Now().Add(-time.Hour).Unix()
	mac2 := hmac.New(sha256.New, []byte(secret))
	mac2.Write([]byte(path + "?expires=" + strconv.FormatInt(expired, 10)))
	sig2 := hex.EncodeToString(mac2.Sum(nil))
	rExpired := httptest.NewRequest("GET", path+"?expires="+strconv.FormatInt(expired, 10)+"&signature="+sig2, nil)
	assert.Error(t, verifySignedURL(rExpired, secret))

	rMissing := httptest.NewRequest("GET", path, nil)
	assert.Error(t, verifySignedURL(rMissing, secret))
}
