package browser

// ShimScript patches pages for older engines. Every patch is guarded, so
// evaluating the script twice in one document changes nothing.
//
//   - TimeRanges.prototype.asArray returns [{start, end}, ...] in index order
//   - HTMLTrackElement.prototype.mode forwards to the underlying text track
//   - navigator.mediaDevices.getUserMedia wraps the vendor prefixed
//     callback API or rejects with "getUserMedia is not implemented in this browser"
//   - window.__mediaport keeps capture streams and unsettled play
//     promises by id
const ShimScript = `(function () {
  if (window.__mediaport) {
    return;
  }
  window.__mediaport = { streams: {}, plays: {}, next: 0 };

  if (typeof TimeRanges !== 'undefined' && !('asArray' in TimeRanges.prototype)) {
    Object.defineProperty(TimeRanges.prototype, 'asArray', {
      configurable: true,
      value: function () {
        var result = new Array(this.length);
        for (var i = this.length - 1; i >= 0; i--) {
          result[i] = { start: this.start(i), end: this.end(i) };
        }
        return result;
      }
    });
  }

  if (typeof HTMLTrackElement !== 'undefined' && !('mode' in HTMLTrackElement.prototype)) {
    Object.defineProperty(HTMLTrackElement.prototype, 'mode', {
      configurable: true,
      get: function () { return this.track.mode; },
      set: function (mode) { this.track.mode = mode; }
    });
  }

  if (!navigator.mediaDevices) {
    navigator.mediaDevices = {};
  }
  if (!navigator.mediaDevices.getUserMedia) {
    var legacy = navigator.getUserMedia || navigator.webkitGetUserMedia || navigator.mozGetUserMedia;
    navigator.mediaDevices.getUserMedia = function (constraints) {
      if (!legacy) {
        return Promise.reject(new Error('getUserMedia is not implemented in this browser'));
      }
      return new Promise(function (resolve, reject) {
        legacy.call(navigator, constraints, resolve, reject);
      });
    };
  }
})();`

// Names of the page side helpers used by the registry.
const (
	jsStreams = "window.__mediaport.streams"
	jsPlays   = "window.__mediaport.plays"
	jsNext    = "window.__mediaport.next"
)
