package lint

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("rooted.lint")
