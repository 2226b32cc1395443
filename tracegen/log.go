package tracegen

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("rooted.tracegen")
