package agent

// The extraction scripts below are the site-specific payloads the agent
// injects into pages. Their internals track the site's markup and are
// treated as opaque by everything outside this file.

const countPostsScript = `() => document.querySelectorAll('section.note-item').length`

const scrollListingScript = `() => { window.scrollBy(0, window.innerHeight); }`

const extractPostsScript = `(limit) => {
  const items = Array.from(document.querySelectorAll('section.note-item'));
  const sliced = limit > 0 ? items.slice(0, limit) : items;
  return sliced.map(item => {
    const link = item.querySelector('a[href*="/explore/"], a[href*="/discovery/item/"]');
    const href = link ? link.getAttribute('href') : '';
    const idMatch = href.match(/(?:explore|item)\/([0-9a-f]+)/);
    return {
      post_id: idMatch ? idMatch[1] : '',
      title: (item.querySelector('.title, .note-title')?.innerText || '').trim(),
      author: (item.querySelector('.author .name, .user-name')?.innerText || '').trim(),
      url: href ? new URL(href, location.origin).href : '',
    };
  }).filter(p => p.post_id !== '');
}`

const clickPostByTitleScript = `(title) => {
  const items = Array.from(document.querySelectorAll('section.note-item'));
  for (const item of items) {
    const text = (item.querySelector('.title, .note-title')?.innerText || '').trim();
    if (text && text.includes(title)) {
      const link = item.querySelector('a') || item;
      link.click();
      return true;
    }
  }
  return false;
}`

const countCommentsScript = `() => document.querySelectorAll('.comment-item').length`

const expandCommentsScript = `() => {
  const container = document.querySelector('.note-scroller, .comments-container');
  if (container) container.scrollTop = container.scrollHeight;
  const more = document.querySelector('.show-more, .more-comments');
  if (more) more.click();
}`

const extractCommentsScript = `(includeReplies) => {
  const comments = [];
  for (const node of document.querySelectorAll('.comment-item')) {
    const isReply = node.closest('.reply-container') !== null;
    if (isReply && !includeReplies) continue;
    comments.push({
      author: (node.querySelector('.author .name, .user-name')?.innerText || '').trim(),
      content: (node.querySelector('.content, .note-text')?.innerText || '').trim(),
      likes: parseInt(node.querySelector('.like-count, .count')?.innerText || '0', 10) || 0,
      is_reply: isReply,
    });
  }
  return {
    content: (document.querySelector('.note-content, #detail-desc')?.innerText || '').trim(),
    title: (document.querySelector('#detail-title, .note-detail-title')?.innerText || '').trim(),
    comments: comments,
  };
}`

const clickAuthorAvatarScript = `(args) => {
  const { userid, username } = args || {};
  if (userid) {
    const link = document.querySelector('a[href*="/user/profile/' + userid + '"]');
    if (link) { link.click(); return true; }
  }
  if (username) {
    const links = document.querySelectorAll('.author-container a, .note-detail .author a');
    for (const link of links) {
      if ((link.innerText || '').includes(username)) { link.click(); return true; }
    }
  }
  const avatar = document.querySelector('.author-container .avatar, .note-detail .author a');
  if (!avatar) return false;
  avatar.click();
  return true;
}`

const extractUserProfileScript = `() => {
  const stats = Array.from(document.querySelectorAll('.user-interactions .count, .data-info .count'))
    .map(n => (n.innerText || '').trim());
  return {
    username: (document.querySelector('.user-name, .name-detail .user-name')?.innerText || '').trim(),
    bio: (document.querySelector('.user-desc, .user-brief')?.innerText || '').trim(),
    follows: stats[0] || '',
    followers: stats[1] || '',
    likes: stats[2] || '',
    url: location.href,
  };
}`
