// Package episodefile maps media file names to the canonical episodes they
// hold. A single file named Show.S02E01E02.mkv covers two episodes, and the
// episode reconciler needs both marked as owned.
package episodefile
