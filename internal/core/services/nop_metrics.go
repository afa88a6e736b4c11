package services

// NopMetrics discards lifecycle events.
type NopMetrics struct{}

func (NopMetrics) StreamCreated()        {}
func (NopMetrics) StreamEnded(string)    {}
func (NopMetrics) StreamDeleted()        {}
func (NopMetrics) ChatRoomOpened()       {}
func (NopMetrics) ChatRoomClosed()       {}
func (NopMetrics) ChatRoomFailed(string) {}
func (NopMetrics) MediaStopFailed()      {}
