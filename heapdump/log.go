package heapdump

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("rooted.heapdump")
