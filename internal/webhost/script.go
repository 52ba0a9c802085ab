package webhost

import "fmt"

// BindingName is the runtime binding page scripts use to reach the shell.
const BindingName = "nearilBridge"

const resolverName = "__nearilMediaResolve"

// gateScript runs before any page script. It routes getUserMedia through the
// shell's permission flow and reports clicks on non-web links, which never
// reach the Fetch domain.
var gateScript = fmt.Sprintf(`(() => {
  const send = (msg) => { try { window[%[1]q](JSON.stringify(msg)); } catch (e) {} };
  const md = navigator.mediaDevices;
  if (md && md.getUserMedia && !md.__nearilGated) {
    const original = md.getUserMedia.bind(md);
    const pending = new Map();
    let seq = 0;
    window[%[2]q] = (id, granted) => {
      const p = pending.get(id);
      if (!p) return;
      pending.delete(id);
      granted ? p.resolve() : p.reject(new DOMException("Permission denied", "NotAllowedError"));
    };
    md.getUserMedia = (constraints) => new Promise((resolve, reject) => {
      const id = String(++seq);
      pending.set(id, { resolve, reject });
      const resources = [];
      if (constraints && constraints.video) resources.push("video-capture");
      if (constraints && constraints.audio) resources.push("audio-capture");
      send({ type: "media", id, resources });
    }).then(() => original(constraints));
    md.__nearilGated = true;
  }
  const web = new Set(["http:", "https:", "about:", "blob:", "data:", "javascript:"]);
  document.addEventListener("click", (ev) => {
    const a = ev.target && ev.target.closest ? ev.target.closest("a[href]") : null;
    if (!a || web.has(a.protocol)) return;
    ev.preventDefault();
    send({ type: "navigate", url: a.href });
  }, true);
})();`, BindingName, resolverName)

// chooserAttrsFn reads the attributes of an intercepted file input.
const chooserAttrsFn = `function() {
  return { accept: this.accept || "", capture: this.hasAttribute("capture"), multiple: !!this.multiple };
}`

func resolveMediaExpr(id string, granted bool) string {
	return fmt.Sprintf("window[%q] && window[%q](%q, %t)", resolverName, resolverName, id, granted)
}
