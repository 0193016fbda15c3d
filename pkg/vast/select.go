package vast

// SelectMediaFile picks the MediaFile whose Bitrate is closest to
// targetKbps among an InLine ad's first Linear creative, preferring the
// higher bitrate on a tie. It reports false if the creative has no
// usable MediaFile.
func SelectMediaFile(inline *InLine, targetKbps int) (MediaFile, bool) {
	for _, creative := range inline.Creatives {
		if creative.Linear == nil || len(creative.Linear.MediaFiles) == 0 {
			continue
		}
		return nearestBitrate(creative.Linear.MediaFiles, targetKbps), true
	}
	return MediaFile{}, false
}

func nearestBitrate(files []MediaFile, targetKbps int) MediaFile {
	best := files[0]
	bestDelta := abs(best.Bitrate - targetKbps)
	for _, f := range files[1:] {
		delta := abs(f.Bitrate - targetKbps)
		if delta < bestDelta || (delta == bestDelta && f.Bitrate > best.Bitrate) {
			best = f
			bestDelta = delta
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
