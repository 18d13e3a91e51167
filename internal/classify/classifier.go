// Package classify decides the content type of a message body. Detection is
// purely syntactic: the first URL-like substring is matched and inspected,
// no network access is ever performed.
package classify

import (
	"regexp"
	"strings"

	"pairchat/internal/domain"
)

// Generic TLDs plus the country-code list recognized by the bare-domain
// matcher. Scheme-prefixed URLs are accepted regardless of TLD.
const recognizedTLDs = `com|net|org|edu|gov|mil|aero|asia|biz|cat|coop|info|int|jobs|mobi|museum|name|post|pro|tel|travel|xxx|` +
	`ac|ad|ae|af|ag|ai|al|am|an|ao|aq|ar|as|at|au|aw|ax|az|ba|bb|bd|be|bf|bg|bh|bi|bj|bm|bn|bo|br|bs|bt|bv|bw|by|bz|` +
	`ca|cc|cd|cf|cg|ch|ci|ck|cl|cm|cn|co|cr|cu|cv|cx|cy|cz|de|dj|dk|dm|do|dz|ec|ee|eg|er|es|et|eu|fi|fj|fk|fm|fo|fr|` +
	`ga|gb|gd|ge|gf|gg|gh|gi|gl|gm|gn|gp|gq|gr|gs|gt|gu|gw|gy|hk|hm|hn|hr|ht|hu|id|ie|il|im|in|io|iq|ir|is|it|je|jm|` +
	`jo|jp|ke|kg|kh|ki|km|kn|kp|kr|kw|ky|kz|la|lb|lc|li|lk|lr|ls|lt|lu|lv|ly|ma|mc|md|me|mg|mh|mk|ml|mm|mn|mo|mp|mq|` +
	`mr|ms|mt|mu|mv|mw|mx|my|mz|na|nc|ne|nf|ng|ni|nl|no|np|nr|nu|nz|om|pa|pe|pf|pg|ph|pk|pl|pm|pn|pr|ps|pt|pw|py|qa|` +
	`re|ro|rs|ru|rw|sa|sb|sc|sd|se|sg|sh|si|sj|sk|sl|sm|sn|so|sr|ss|st|su|sv|sx|sy|sz|tc|td|tf|tg|th|tj|tk|tl|tm|tn|` +
	`to|tr|tt|tv|tw|tz|ua|ug|uk|us|uy|uz|va|vc|ve|vg|vi|vn|vu|wf|ws|ye|yt|za|zm|zw`

// urlPattern matches either an explicit http(s) URL or a bare domain with a
// recognized TLD and optional path. The first match in a message decides the
// classification; further URLs in the same message are ignored.
var urlPattern = regexp.MustCompile(
	`(?i)\b(?:` +
		`https?://[^\s<>"'` + "`" + `]+` +
		`|(?:[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+(?:` + recognizedTLDs + `)\b(?:/[^\s<>"'` + "`" + `]*)?` +
		`)`,
)

// imageExtensions are checked as literal suffixes of the matched URL. A query
// string after an extension-like segment defeats the check on purpose: the
// match then falls through to LINK.
var imageExtensions = []string{
	".png", ".jpg", ".jpeg", ".tiff", ".gif", ".bmp", ".exif",
	".svg", ".bpg", ".bat", ".ppm", ".pgm", ".pbm",
}

var videoHosts = []string{
	"youtube.com", "vevo.com", "vimeo.com",
	"dailymotion.com", "twitch.com", "metacafe.com",
}

// Classify inspects content and returns its content type. It is pure and
// total: anything URL-like that cannot be categorized further degrades to
// LINK, and anything without a URL is TEXT. It never fails.
func Classify(content string) domain.ContentType {
	url := urlPattern.FindString(content)
	if url == "" {
		return domain.ContentTypeText
	}

	// Sentence punctuation hugging the URL is not part of it: "see
	// http://x/cat.png." still ends in .png.
	url = strings.TrimRight(url, `.,;:!?'")]`)

	lower := strings.ToLower(url)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return domain.ContentTypeImage
		}
	}

	if isVideoHost(hostOf(lower)) {
		return domain.ContentTypeVideo
	}

	return domain.ContentTypeLink
}

// hostOf extracts the host portion of an already lowercased URL match.
func hostOf(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	if i := strings.IndexAny(url, "/?#"); i >= 0 {
		url = url[:i]
	}
	if i := strings.IndexByte(url, ':'); i >= 0 {
		url = url[:i]
	}
	return url
}

func isVideoHost(host string) bool {
	for _, d := range videoHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
