package event

type EventType string

const TypeAttach EventType = "attach"
const TypeDetach EventType = "detach"
const TypeStringMessage EventType = "message"
const TypeNTPQuery EventType = "ntp-query"
const TypeNTPResponse EventType = "ntp-response"
const TypeNTPError EventType = "ntp-error"
const TypeBrowserNavigate EventType = "browser-navigate"

const TypeMediaCommand EventType = "media-command"
const TypeMediaResult EventType = "media-result"
const TypeMediaCanPlayType EventType = "media-canplaytype"
const TypeMediaCanPlayTypeResult EventType = "media-canplaytype-result"
const TypeMediaState EventType = "media-state"
const TypeMediaStateResult EventType = "media-state-result"

const TypeBrowserScreenshot EventType = "browser-screenshot"
const TypeBrowserScreenshotResult EventType = "browser-screenshot-result"
const TypeBrowserLog EventType = "browser-log"
const TypeBrowserLogResult EventType = "browser-log-result"
